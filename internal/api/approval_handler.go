package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Runbooks/internal/auth"
	"github.com/shaiso/Runbooks/internal/orchestrator"
)

// ListPending возвращает очередь одобрений вызывающего.
// GET /api/v1/approvals/pending
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	list, err := h.orch.Pending(r.Context(), caller)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, ExecutionsFromDomain(list), len(list))
}

// Decide принимает решение approver'а.
// POST /api/v1/executions/{id}/decision
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	caller, _ := auth.CallerFrom(r.Context())

	exec, err := h.orch.Decide(r.Context(), caller, orchestrator.DecideRequest{
		ExecutionID: id,
		Decision:    req.Decision,
		Comment:     req.Comment,
	})
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, ExecutionFromDomain(*exec))
}

// Cancel отменяет execution до запуска.
// POST /api/v1/executions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	caller, _ := auth.CallerFrom(r.Context())

	exec, err := h.orch.Cancel(r.Context(), caller, id)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, ExecutionFromDomain(*exec))
}
