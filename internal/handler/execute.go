package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/gradebox/internal/auth"
	"github.com/sakif/gradebox/internal/executor"
)

// MaxRequestBytes caps the request body: source, template and all tests.
const MaxRequestBytes = 1 << 20

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	exec   executor.Executor
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(exec executor.Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// HandleExecute grades one submission.
//
// The body is always an executor.Result. Timeouts are sent with 408 and
// malformed bodies with 400; every other outcome, failures included, is a
// 200 whose "status" and "code" fields say what happened.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)

	var req executor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, executor.Invalid("request body must be a JSON object"))
		return
	}

	attrs := []any{
		slog.String("language", req.Language),
		slog.Int("tests", len(req.Tests)),
	}
	if client, ok := auth.ClientFromContext(r.Context()); ok {
		attrs = append(attrs, slog.String("client", client))
	}
	h.logger.Info("executing submission", attrs...)

	result := h.exec.Execute(r.Context(), req)
	writeJSON(w, result.HTTPStatus(), result)
}
