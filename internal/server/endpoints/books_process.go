package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/distill/internal/api"
	"github.com/jackzampolin/distill/internal/pipeline"
	"github.com/jackzampolin/distill/internal/store"
	"github.com/jackzampolin/distill/internal/svcctx"
)

// ProcessBookEndpoint handles POST /api/books/{id}/process. It triggers
// the book's pipeline and returns immediately; progress is observed by
// polling GET /api/books/{id}.
type ProcessBookEndpoint struct{}

var _ api.Endpoint = (*ProcessBookEndpoint)(nil)

func (e *ProcessBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/process", e.handler
}

func (e *ProcessBookEndpoint) RequiresInit() bool { return true }

func (e *ProcessBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}

	if err := orch.Trigger(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "book not found")
		case errors.Is(err, pipeline.ErrAlreadyProcessing):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing", "book_id": id})
}

func (e *ProcessBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "process <id>",
		Short: "Start distilling a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]string
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/process", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
