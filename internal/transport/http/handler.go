package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sachinggsingh/synceditor-relay/internal/exec"
	httpmw "github.com/sachinggsingh/synceditor-relay/internal/transport/http/middleware"
	"github.com/sachinggsingh/synceditor-relay/internal/validate"
)

type Handler struct {
	runner *exec.Client
}

func NewHandler(runner *exec.Client) *Handler {
	return &Handler{runner: runner}
}

type ExecuteRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type ExecuteResponse struct {
	Output string `json:"output"`
	Failed bool   `json:"failed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /execute — проксирует кусок кода в движок исполнения. Результат клиент
// сам рассылает комнате через code-output.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if req.Language == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "language is required"})
		return
	}
	code, err := validate.Code(req.Code)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if id, ok := httpmw.IdentityFromCtx(r.Context()); ok {
		slog.Info("code execute", "subject", id.Subject, "language", req.Language)
	}

	res, err := h.runner.Run(r.Context(), req.Language, code)
	if err != nil {
		slog.Error("handler.Execute:", slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "execution engine unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, ExecuteResponse{
		Output: res.Output,
		Failed: res.Failed,
	})
}
