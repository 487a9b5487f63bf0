package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/distill/internal/api"
	"github.com/jackzampolin/distill/internal/ingest"
	"github.com/jackzampolin/distill/internal/store"
	"github.com/jackzampolin/distill/internal/svcctx"
)

// UploadStreamEndpoint handles POST /api/books/upload-stream with a
// multipart PDF upload. Preprocessing progress is streamed back as
// server-sent events; the terminal event is either result or error.
type UploadStreamEndpoint struct{}

var _ api.Endpoint = (*UploadStreamEndpoint)(nil)

func (e *UploadStreamEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/upload-stream", e.handler
}

func (e *UploadStreamEndpoint) RequiresInit() bool { return true }

func (e *UploadStreamEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 100 << 20 // 100MB
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", header.Filename))
		return
	}

	variant := store.VariantClaims
	switch r.FormValue("pipeline") {
	case "", string(store.VariantClaims):
	case string(store.VariantChapters):
		variant = store.VariantChapters
	default:
		writeError(w, http.StatusBadRequest, "pipeline must be claims or chapters")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	llmClient := svcctx.LLMFrom(r.Context())
	if st == nil || llmClient == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}
	logger := svcctx.LoggerFrom(r.Context())

	// Save the upload to a temp file; the PDF readers need a path.
	tempDir, err := os.MkdirTemp("", "distill-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create temp dir: %v", err))
		return
	}
	defer os.RemoveAll(tempDir)

	destPath := filepath.Join(tempDir, filepath.Base(header.Filename))
	dst, err := os.Create(destPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save upload: %v", err))
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save upload: %v", err))
		return
	}
	dst.Close()

	// From here on errors flow through the event stream, not HTTP status.
	sse, err := ingest.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := ingest.New(st, llmClient, logger).IngestPDF(r.Context(), ingest.Request{
		FilePath: destPath,
		FileName: header.Filename,
		Title:    r.FormValue("title"),
		Author:   r.FormValue("author"),
		Variant:  variant,
	}, func(step string, pct int) {
		_ = sse.Progress(step, pct)
	})
	if err != nil {
		_ = sse.Error(err.Error())
		return
	}

	_ = sse.Result(result)
}

func (e *UploadStreamEndpoint) Command(_ func() string) *cobra.Command {
	// No CLI command: uploads go through the web UI or curl.
	return nil
}
