package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Runbooks/internal/auth"
	"github.com/shaiso/Runbooks/internal/telemetry"
)

// ListRunbooks возвращает каталог.
// GET /api/v1/runbooks
func (h *Handler) ListRunbooks(w http.ResponseWriter, r *http.Request) {
	list := h.orch.Runbooks()
	List(w, RunbooksFromDomain(list), len(list))
}

// GetRunbook возвращает runbook по имени.
// GET /api/v1/runbooks/{name}
func (h *Handler) GetRunbook(w http.ResponseWriter, r *http.Request) {
	rb, err := h.orch.Runbook(r.PathValue("name"))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, RunbookFromDomain(*rb))
}

// ListPolicies возвращает политики runbook'а.
// GET /api/v1/runbooks/{name}/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	list, err := h.orch.Policies(r.Context(), r.PathValue("name"))
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, list, len(list))
}

// PutPolicy создаёт или заменяет политику для (runbook, trigger_role).
// PUT /api/v1/runbooks/{name}/policies
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePolicy(w, r)
	if !ok {
		return
	}
	caller, _ := auth.CallerFrom(r.Context())

	saved, err := h.orch.PutPolicy(r.Context(), caller, req.ToDomain(r.PathValue("name")))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, saved)
}

// CreatePolicy добавляет политику. Пара (runbook, trigger_role) должна быть новой.
// POST /api/v1/runbooks/{name}/policies
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePolicy(w, r)
	if !ok {
		return
	}
	caller, _ := auth.CallerFrom(r.Context())

	created, err := h.orch.CreatePolicy(r.Context(), caller, req.ToDomain(r.PathValue("name")))
	if HandleError(w, h.logger, err) {
		return
	}

	telemetry.FromContext(r.Context()).Info("policy created",
		"runbook", created.RunbookName,
		"trigger_role", created.TriggerRole,
		"approval_mode", created.Mode,
	)
	Created(w, created)
}

func decodePolicy(w http.ResponseWriter, r *http.Request) (PolicyRequest, bool) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return req, false
	}
	return req, true
}
