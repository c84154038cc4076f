package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/auth"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/orchestrator"
)

// TriggerExecution запускает runbook.
// POST /api/v1/runbooks/{name}/executions
//
// Пустое тело — запуск с параметрами по умолчанию.
func (h *Handler) TriggerExecution(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid JSON body")
		return
	}
	caller, _ := auth.CallerFrom(r.Context())

	res, err := h.orch.Trigger(r.Context(), caller, orchestrator.TriggerRequest{
		RunbookName: r.PathValue("name"),
		DryRun:      req.DryRun,
		Parameters:  req.Parameters,
	})
	if HandleError(w, h.logger, err) {
		return
	}

	Created(w, TriggerResponse{
		ExecutionResponse: ExecutionFromDomain(*res.Execution),
		RateLimited:       res.RateLimited,
		Note:              res.Note,
	})
}

// ListExecutions возвращает историю.
// GET /api/v1/executions?runbook=&status=&triggered_by=&limit=&offset=
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	filter.TriggeredBy = r.URL.Query().Get("triggered_by")

	list, total, err := h.orch.History(r.Context(), filter)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, ExecutionsFromDomain(list), total)
}

// ListMyExecutions возвращает executions вызывающего.
// GET /api/v1/executions/mine
func (h *Handler) ListMyExecutions(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	caller, _ := auth.CallerFrom(r.Context())

	list, total, err := h.orch.Mine(r.Context(), caller, filter)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, ExecutionsFromDomain(list), total)
}

// GetExecution возвращает execution по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	exec, err := h.orch.Get(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, ExecutionFromDomain(*exec))
}

// ListTransitions возвращает журнал переходов.
// GET /api/v1/executions/{id}/transitions
func (h *Handler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	list, err := h.orch.Transitions(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, list, len(list))
}

// ListDecisions возвращает голоса approver'ов.
// GET /api/v1/executions/{id}/decisions
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	list, err := h.orch.Decisions(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, list, len(list))
}

// GetResult возвращает результат Runner'а.
// GET /api/v1/executions/{id}/result
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	exec, err := h.orch.Get(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	result, err := h.orch.Result(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, ResultResponse{
		ExecutionID:   exec.ID.String(),
		Status:        exec.Status,
		ItemsFound:    exec.ItemsFound,
		ItemsActioned: exec.ItemsActioned,
		ErrorMessage:  exec.ErrorMessage,
		Result:        result,
	})
}

// GetStats возвращает агрегаты по runbook'ам.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.Stats(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	if stats == nil {
		stats = []domain.ExecutionStats{}
	}
	Success(w, StatsResponse{GeneratedAt: time.Now().UTC(), Runbooks: stats})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution ID")
		return uuid.Nil, false
	}
	return id, true
}

func parseFilter(w http.ResponseWriter, r *http.Request) (domain.ExecutionFilter, bool) {
	q := r.URL.Query()
	filter := domain.ExecutionFilter{
		RunbookName: q.Get("runbook"),
		Status:      domain.ExecutionStatus(q.Get("status")),
	}

	var err error
	if s := q.Get("limit"); s != "" {
		if filter.Limit, err = strconv.Atoi(s); err != nil {
			BadRequest(w, "invalid limit")
			return filter, false
		}
	}
	if s := q.Get("offset"); s != "" {
		if filter.Offset, err = strconv.Atoi(s); err != nil {
			BadRequest(w, "invalid offset")
			return filter, false
		}
	}
	return filter, true
}
