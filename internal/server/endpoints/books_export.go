package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/distill/internal/api"
	"github.com/jackzampolin/distill/internal/epub"
	"github.com/jackzampolin/distill/internal/store"
	"github.com/jackzampolin/distill/internal/svcctx"
)

// ExportEpubEndpoint handles GET /api/books/{id}/export. It packages the
// distilled document as an ePub, one section per core idea (claims) or
// compressed chapter (chapters).
type ExportEpubEndpoint struct{}

var _ api.Endpoint = (*ExportEpubEndpoint)(nil)

func (e *ExportEpubEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/export", e.handler
}

func (e *ExportEpubEndpoint) RequiresInit() bool { return true }

func (e *ExportEpubEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	book, err := st.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := st.GetFinalOutput(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no output for this book yet")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	builder := epub.NewBuilder(epub.Book{
		ID:        book.ID,
		Title:     book.Title + " (Distilled)",
		Author:    book.Author,
		CreatedAt: book.CreatedAt,
	}, epub.SplitSections(out.Markdown))

	buf, err := builder.BuildToBuffer()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("epub generation failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/epub+zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName(book)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// exportFileName derives a safe download name from the book title.
func exportFileName(book *store.Book) string {
	name := strings.ToLower(book.Title)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)
	name = strings.Trim(strings.Join(strings.FieldsFunc(name, func(r rune) bool { return r == '-' }), "-"), "-")
	if name == "" {
		name = book.ID
	}
	return name + "-distilled.epub"
}

func (e *ExportEpubEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a book's distilled output as ePub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				outPath = args[0] + "-distilled.epub"
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()

			client := api.NewClient(getServerURL())
			if err := client.Download(cmd.Context(), "/api/books/"+args[0]+"/export", f); err != nil {
				os.Remove(outPath)
				return err
			}

			fmt.Printf("Wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "O", "", "output file (default: <id>-distilled.epub)")
	return cmd
}
