package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/tools"
)

// Dispatcher runs registered tools.
type Dispatcher interface {
	ToolIndex
	Dispatch(ctx context.Context, name string, body []byte) (*model.ToolResponse, error)
	List() []tools.Info
}

// ToolsHandler serves the tool endpoints.
type ToolsHandler struct {
	tools  Dispatcher
	logger *slog.Logger
}

func NewToolsHandler(d Dispatcher, logger *slog.Logger) *ToolsHandler {
	return &ToolsHandler{tools: d, logger: logger}
}

// Call handles POST /tools/{tool}
// @Summary      Call a tool
// @Description  Runs a tool. Priced tools answer 402 with X-Payment-Required until the request carries a valid X-Payment proof.
// @Tags         tools
// @Accept       json
// @Produce      json
// @Param        tool       path      string  true   "Tool name"
// @Param        X-Payment  header    string  false  "Signed payment proof (JSON)"
// @Param        request    body      object  false  "Tool input"
// @Success      200  {object}  model.ToolResponse
// @Failure      400  {object}  model.ErrorResponse
// @Failure      402  {object}  model.PaymentRequiredResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /tools/{tool} [post]
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, h.logger, apperr.Validation("request body too large"))
		return
	}

	resp, err := h.tools.Dispatch(r.Context(), r.PathValue("tool"), body)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /tools
// @Summary      List tools
// @Description  Lists registered tools with their input schemas
// @Tags         tools
// @Produce      json
// @Success      200  {array}  tools.Info
// @Router       /tools [get]
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tools.List())
}
