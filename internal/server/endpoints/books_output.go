package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/distill/internal/api"
	"github.com/jackzampolin/distill/internal/store"
	"github.com/jackzampolin/distill/internal/svcctx"
)

// GetOutputEndpoint handles GET /api/books/{id}/output. The output
// exists only after a pipeline run has completed.
type GetOutputEndpoint struct{}

var _ api.Endpoint = (*GetOutputEndpoint)(nil)

func (e *GetOutputEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/output", e.handler
}

func (e *GetOutputEndpoint) RequiresInit() bool { return true }

func (e *GetOutputEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	out, err := st.GetFinalOutput(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no output for this book yet")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, outputResponse(out))
}

func (e *GetOutputEndpoint) Command(getServerURL func() string) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "output <id>",
		Short: "Get a book's distilled markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var out Output
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/output", &out); err != nil {
				return err
			}
			if raw {
				cmd.Println(out.Markdown)
				return nil
			}
			return api.Output(out)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the markdown only")
	return cmd
}
