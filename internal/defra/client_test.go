package defra

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// gqlServer fakes the DefraDB GraphQL endpoint, recording the last
// request and replying with the scripted response.
func gqlServer(t *testing.T, respond func(req GQLRequest) GQLResponse) (*httptest.Server, *GQLRequest) {
	t.Helper()
	var last GQLRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health-check":
			w.WriteHeader(http.StatusOK)
		case "/api/v0/graphql":
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &last); err != nil {
				t.Errorf("bad request body: %v", err)
			}
			_ = json.NewEncoder(w).Encode(respond(last))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestHealthCheck(t *testing.T) {
	srv, _ := gqlServer(t, nil)
	c := NewClient(srv.URL)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatal(err)
	}

	bad := NewClient("http://127.0.0.1:1")
	if err := bad.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check failure")
	}
}

func TestCreateMany(t *testing.T) {
	srv, last := gqlServer(t, func(req GQLRequest) GQLResponse {
		return GQLResponse{Data: map[string]any{
			"create_Claim": []any{
				map[string]any{"_docID": "bae-1"},
				map[string]any{"_docID": "bae-2"},
			},
		}}
	})
	c := NewClient(srv.URL)

	ids, err := c.CreateMany(context.Background(), "Claim", []map[string]any{
		{"text": "a", "chunk_index": 0},
		{"text": "b", "chunk_index": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "bae-1" || ids[1] != "bae-2" {
		t.Errorf("ids = %v", ids)
	}
	if !strings.Contains(last.Query, "create_Claim") {
		t.Errorf("query = %q", last.Query)
	}
}

func TestCreateManyEmptyInput(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	ids, err := c.CreateMany(context.Background(), "Claim", nil)
	if err != nil || ids != nil {
		t.Errorf("got %v, %v for empty input", ids, err)
	}
}

func TestCreateManyCountMismatch(t *testing.T) {
	srv, _ := gqlServer(t, func(req GQLRequest) GQLResponse {
		return GQLResponse{Data: map[string]any{
			"create_Claim": []any{map[string]any{"_docID": "bae-1"}},
		}}
	})
	c := NewClient(srv.URL)

	_, err := c.CreateMany(context.Background(), "Claim", []map[string]any{{"a": 1}, {"b": 2}})
	if err == nil {
		t.Error("expected count mismatch error")
	}
}

func TestDeleteWhere(t *testing.T) {
	srv, last := gqlServer(t, func(req GQLRequest) GQLResponse {
		return GQLResponse{Data: map[string]any{
			"delete_Chunk": []any{
				map[string]any{"_docID": "bae-1"},
				map[string]any{"_docID": "bae-2"},
				map[string]any{"_docID": "bae-3"},
			},
		}}
	})
	c := NewClient(srv.URL)

	n, err := c.DeleteWhere(context.Background(), "Chunk", map[string]any{
		"book_id": map[string]any{"_eq": "book-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("deleted %d, want 3", n)
	}
	if !strings.Contains(last.Query, "delete_Chunk(filter:") {
		t.Errorf("query = %q", last.Query)
	}
	if !strings.Contains(last.Query, `book_id: {_eq: "book-1"}`) {
		t.Errorf("query = %q", last.Query)
	}
}

func TestGQLErrorSurfaces(t *testing.T) {
	srv, _ := gqlServer(t, func(req GQLRequest) GQLResponse {
		return GQLResponse{Errors: []GQLError{{Message: "no such collection"}}}
	})
	c := NewClient(srv.URL)

	if err := c.Update(context.Background(), "Nope", "bae-1", map[string]any{"x": 1}); err == nil {
		t.Error("expected error from GraphQL errors")
	} else if !strings.Contains(err.Error(), "no such collection") {
		t.Errorf("error = %v", err)
	}
}

func TestValueToGraphQLEscaping(t *testing.T) {
	got, err := mapToGraphQLInput(map[string]any{
		"text": "line one\nline \"two\"",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{text: "line one\nline \"two\""}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestValueToGraphQLStringSlice(t *testing.T) {
	got, err := mapToGraphQLInput(map[string]any{"tags": []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{tags: ["a", "b"]}` {
		t.Errorf("got %s", got)
	}
}
