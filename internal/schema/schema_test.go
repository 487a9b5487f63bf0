package schema

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/distill/internal/defra"
)

func TestAll(t *testing.T) {
	schemas, err := All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(schemas) != len(registry) {
		t.Fatalf("got %d schemas, want %d", len(schemas), len(registry))
	}

	byName := make(map[string]Schema)
	for _, s := range schemas {
		byName[s.Name] = s
		if s.SDL == "" {
			t.Errorf("%s schema SDL is empty", s.Name)
		}
		if !strings.Contains(s.SDL, "type "+s.Name) {
			t.Errorf("%s schema SDL missing type declaration", s.Name)
		}
	}

	for _, name := range []string{"User", "Book", "Chunk", "Chapter", "Claim", "Idea", "FinalOutput"} {
		if _, ok := byName[name]; !ok {
			t.Errorf("%s schema not found", name)
		}
	}

	// Book must be created before its children.
	if byName["Book"].Order >= byName["Chunk"].Order {
		t.Error("Book should initialize before Chunk")
	}
}

func TestGet(t *testing.T) {
	s, err := Get("Book")
	if err != nil {
		t.Fatalf("Get(Book) error = %v", err)
	}
	if s.Name != "Book" || s.SDL == "" {
		t.Errorf("got %+v", s)
	}

	if _, err := Get("NonExistent"); err == nil {
		t.Error("expected error for non-existent schema")
	}
}

func TestInitialize(t *testing.T) {
	t.Run("successful initialization", func(t *testing.T) {
		var applied int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v0/schema" {
				t.Errorf("unexpected path: %s", r.URL.Path)
				return
			}
			applied++
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		if err := Initialize(context.Background(), defra.NewClient(server.URL), slog.Default()); err != nil {
			t.Errorf("Initialize() error = %v", err)
		}
		if applied != len(registry) {
			t.Errorf("applied %d schemas, want %d", applied, len(registry))
		}
	})

	t.Run("handles already exists error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("collection already exists. Name: Book"))
		}))
		defer server.Close()

		if err := Initialize(context.Background(), defra.NewClient(server.URL), slog.Default()); err != nil {
			t.Errorf("Initialize() should tolerate already-exists, got %v", err)
		}
	})

	t.Run("fails on other errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("invalid schema syntax"))
		}))
		defer server.Close()

		if err := Initialize(context.Background(), defra.NewClient(server.URL), slog.Default()); err == nil {
			t.Error("Initialize() should fail on syntax error")
		}
	})
}

func TestIsAlreadyExistsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"already exists", errWithMsg("collection already exists. Name: Book"), true},
		{"already exists variant", errWithMsg("schema already exists"), true},
		{"other error", errWithMsg("invalid syntax"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAlreadyExistsError(tt.err); got != tt.want {
				t.Errorf("isAlreadyExistsError() = %v, want %v", got, tt.want)
			}
		})
	}
}

type errWithMsg string

func (e errWithMsg) Error() string { return string(e) }
