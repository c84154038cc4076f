package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Authenticate(h.resolver, h.logger),
	)

	// Runbooks
	mux.Handle("GET /api/v1/runbooks", chain(http.HandlerFunc(h.ListRunbooks)))
	mux.Handle("GET /api/v1/runbooks/{name}", chain(http.HandlerFunc(h.GetRunbook)))
	mux.Handle("POST /api/v1/runbooks/{name}/executions", chain(http.HandlerFunc(h.TriggerExecution)))

	// Policies
	mux.Handle("GET /api/v1/runbooks/{name}/policies", chain(http.HandlerFunc(h.ListPolicies)))
	mux.Handle("PUT /api/v1/runbooks/{name}/policies", chain(http.HandlerFunc(h.PutPolicy)))
	mux.Handle("POST /api/v1/runbooks/{name}/policies", chain(http.HandlerFunc(h.CreatePolicy)))

	// Executions
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("GET /api/v1/executions/mine", chain(http.HandlerFunc(h.ListMyExecutions)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))
	mux.Handle("GET /api/v1/executions/{id}/transitions", chain(http.HandlerFunc(h.ListTransitions)))
	mux.Handle("GET /api/v1/executions/{id}/decisions", chain(http.HandlerFunc(h.ListDecisions)))
	mux.Handle("GET /api/v1/executions/{id}/result", chain(http.HandlerFunc(h.GetResult)))

	// Approvals
	mux.Handle("POST /api/v1/executions/{id}/decision", chain(http.HandlerFunc(h.Decide)))
	mux.Handle("POST /api/v1/executions/{id}/cancel", chain(http.HandlerFunc(h.Cancel)))
	mux.Handle("GET /api/v1/approvals/pending", chain(http.HandlerFunc(h.ListPending)))

	// Stats
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))
}
