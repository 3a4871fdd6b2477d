package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/AlexZinkM/allowance-gate/docs"
	"github.com/AlexZinkM/allowance-gate/internal/handler"
)

// Handlers are the endpoint groups the router mounts.
type Handlers struct {
	Gate     *handler.Gate
	Tools    *handler.ToolsHandler
	Vault    *handler.VaultHandler
	Receipts *handler.ReceiptsHandler
	Agent    *handler.AgentHandler
}

// SetupRouter sets up router with handlers
func SetupRouter(h Handlers) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	mux.HandleFunc("GET /health", h.Receipts.Health)
	mux.HandleFunc("GET /receipts", h.Receipts.List)

	// Tools; priced ones sit behind the payment gate
	mux.HandleFunc("GET /tools", h.Tools.List)
	mux.Handle("POST /tools/{tool}", h.Gate.Middleware(http.HandlerFunc(h.Tools.Call)))

	// Vault
	mux.HandleFunc("POST /vault-swap", h.Vault.Swap)
	mux.HandleFunc("GET /vault-swap", h.Vault.Status)

	// Agent
	mux.HandleFunc("POST /agent", h.Agent.Chat)
	mux.HandleFunc("GET /sessions/{id}/messages", h.Agent.Messages)
	mux.HandleFunc("POST /sessions/{id}/messages", h.Agent.AppendMessage)
	mux.HandleFunc("POST /sessions/{id}/clear", h.Agent.Clear)

	return mux
}
