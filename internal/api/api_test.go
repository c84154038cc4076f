package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Runbooks/internal/auth"
	"github.com/shaiso/Runbooks/internal/catalog"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/memstore"
	"github.com/shaiso/Runbooks/internal/orchestrator"
	"github.com/shaiso/Runbooks/internal/policy"
	"github.com/shaiso/Runbooks/internal/ratelimit"
	"github.com/shaiso/Runbooks/internal/runner"
)

func int64p(v int64) *int64 { return &v }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cat, err := catalog.New([]domain.Runbook{
		{
			Name:           "stuck_vm_remediation",
			RiskLevel:      domain.RiskMedium,
			SupportsDryRun: true,
			Enabled:        true,
			ParametersSchema: map[string]domain.ParamDef{
				"max_age_minutes": {Type: "integer", Default: 30, Min: int64p(5), Max: int64p(1440)},
			},
		},
		{
			Name:      "orphan_volume_cleanup",
			RiskLevel: domain.RiskHigh,
			Enabled:   true,
		},
		{
			Name:    "legacy_cleanup",
			Enabled: false,
		},
	})
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFake(time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC))

	policies := policy.New(policy.Config{
		Store:    memstore.NewPolicyStore(),
		Runbooks: cat,
		Clock:    clk,
		Logger:   logger,
	})
	seed := []*domain.ApprovalPolicy{
		{
			RunbookName: "stuck_vm_remediation", TriggerRole: "operator", ApproverRole: "sre_lead",
			Mode: domain.ApprovalAuto, MaxAutoExecutionsPerDay: 10, Enabled: true,
		},
		{
			RunbookName: "orphan_volume_cleanup", TriggerRole: "operator", ApproverRole: "sre_lead",
			Mode: domain.ApprovalSingle, EscalationTimeoutMinutes: 60, Enabled: true,
		},
	}
	for _, p := range seed {
		if _, err := policies.Create(context.Background(), p); err != nil {
			t.Fatalf("seed policy: %v", err)
		}
	}

	registry := runner.NewRegistry()
	runner.RegisterStubs(registry)

	orch := orchestrator.New(orchestrator.Config{
		Catalog:  cat,
		Policies: policies,
		Limiter:  ratelimit.NewMemory(clk),
		Runner:   runner.NewDispatcher(runner.DispatcherConfig{Registry: registry, Catalog: cat, Logger: logger}),
		Store:    memstore.NewExecutionStore(),
		Clock:    clk,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	NewHandler(Config{Orchestrator: orch, Logger: logger}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testResponse struct {
	Status int
	Body   map[string]any
}

func do(t *testing.T, srv *httptest.Server, caller *domain.Caller, method, path, body string) testResponse {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if caller != nil {
		req.Header.Set(auth.HeaderPrincipal, caller.Principal)
		req.Header.Set(auth.HeaderRole, caller.Role)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := testResponse{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&out.Body); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return out
}

func (r testResponse) data(t *testing.T) map[string]any {
	t.Helper()
	d, ok := r.Body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", r.Body)
	}
	return d
}

func (r testResponse) errorCode() string {
	e, _ := r.Body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

var (
	operator = &domain.Caller{Principal: "olga", Role: "operator"}
	lead     = &domain.Caller{Principal: "alice", Role: "sre_lead"}
	admin    = &domain.Caller{Principal: "root", Role: "admin"}
	viewer   = &domain.Caller{Principal: "vic", Role: "viewer"}
)

func TestAuthenticationRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, nil, http.MethodGet, "/api/v1/runbooks", "")
	if resp.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Status)
	}
	if resp.errorCode() != string(ErrCodeUnauthorized) {
		t.Errorf("expected code %s, got %s", ErrCodeUnauthorized, resp.errorCode())
	}
}

func TestListRunbooks(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, viewer, http.MethodGet, "/api/v1/runbooks", "")
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if total := resp.Body["total"].(float64); total != 3 {
		t.Errorf("expected 3 runbooks, got %v", total)
	}

	resp = do(t, srv, viewer, http.MethodGet, "/api/v1/runbooks/nope", "")
	if resp.Status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown runbook, got %d", resp.Status)
	}
}

func TestTriggerAutoApproved(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, operator, http.MethodPost, "/api/v1/runbooks/stuck_vm_remediation/executions",
		`{"parameters": {"max_age_minutes": 40}}`)
	if resp.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.Status, resp.Body)
	}

	d := resp.data(t)
	if d["status"] != string(domain.StatusCompleted) {
		t.Errorf("expected completed, got %v", d["status"])
	}
	if d["items_found"].(float64) != 2 {
		t.Errorf("expected 2 items found, got %v", d["items_found"])
	}
	if d["rate_limited"] != false {
		t.Errorf("expected rate_limited=false, got %v", d["rate_limited"])
	}

	id := d["execution_id"].(string)
	result := do(t, srv, viewer, http.MethodGet, "/api/v1/executions/"+id+"/result", "")
	if result.Status != http.StatusOK {
		t.Fatalf("expected 200 for result, got %d", result.Status)
	}
	if _, ok := result.data(t)["result"].(map[string]any)["stuck_vms"]; !ok {
		t.Errorf("expected stuck_vms in result, got %v", result.data(t))
	}

	trs := do(t, srv, viewer, http.MethodGet, "/api/v1/executions/"+id+"/transitions", "")
	if total := trs.Body["total"].(float64); total != 3 {
		t.Errorf("expected 3 transitions, got %v", total)
	}
}

func TestTriggerErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		caller *domain.Caller
		path   string
		body   string
		status int
		code   ErrorCode
	}{
		{
			name:   "parameter out of range",
			caller: operator,
			path:   "/api/v1/runbooks/stuck_vm_remediation/executions",
			body:   `{"parameters": {"max_age_minutes": 1}}`,
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidParameters,
		},
		{
			name:   "dry run unsupported",
			caller: operator,
			path:   "/api/v1/runbooks/orphan_volume_cleanup/executions",
			body:   `{"dry_run": true}`,
			status: http.StatusBadRequest,
			code:   ErrCodeDryRunUnsupported,
		},
		{
			name:   "disabled runbook",
			caller: operator,
			path:   "/api/v1/runbooks/legacy_cleanup/executions",
			status: http.StatusNotFound,
			code:   ErrCodeRunbookUnavailable,
		},
		{
			name:   "no policy for role",
			caller: viewer,
			path:   "/api/v1/runbooks/stuck_vm_remediation/executions",
			status: http.StatusForbidden,
			code:   ErrCodeForbidden,
		},
		{
			name:   "malformed body",
			caller: operator,
			path:   "/api/v1/runbooks/stuck_vm_remediation/executions",
			body:   `{`,
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.caller, http.MethodPost, tt.path, tt.body)
			if resp.Status != tt.status {
				t.Errorf("expected %d, got %d: %v", tt.status, resp.Status, resp.Body)
			}
			if resp.errorCode() != string(tt.code) {
				t.Errorf("expected code %s, got %s", tt.code, resp.errorCode())
			}
		})
	}
}

func TestInvalidParameterNamesParam(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, operator, http.MethodPost, "/api/v1/runbooks/stuck_vm_remediation/executions",
		`{"parameters": {"max_age_minutes": 1}}`)
	e := resp.Body["error"].(map[string]any)
	if e["param"] != "max_age_minutes" {
		t.Errorf("expected param max_age_minutes, got %v", e["param"])
	}
}

func TestSingleApprovalFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, operator, http.MethodPost, "/api/v1/runbooks/orphan_volume_cleanup/executions", "")
	if resp.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.Status, resp.Body)
	}
	d := resp.data(t)
	if d["status"] != string(domain.StatusPendingApproval) {
		t.Fatalf("expected pending_approval, got %v", d["status"])
	}
	id := d["execution_id"].(string)

	pending := do(t, srv, lead, http.MethodGet, "/api/v1/approvals/pending", "")
	if total := pending.Body["total"].(float64); total != 1 {
		t.Fatalf("expected 1 pending for sre_lead, got %v", total)
	}
	pending = do(t, srv, viewer, http.MethodGet, "/api/v1/approvals/pending", "")
	if total := pending.Body["total"].(float64); total != 0 {
		t.Errorf("expected 0 pending for viewer, got %v", total)
	}

	// инициатор не может одобрить сам себя
	resp = do(t, srv, operator, http.MethodPost, "/api/v1/executions/"+id+"/decision", `{"decision": "approved"}`)
	if resp.Status != http.StatusForbidden {
		t.Errorf("expected 403 for operator decision, got %d", resp.Status)
	}

	resp = do(t, srv, lead, http.MethodPost, "/api/v1/executions/"+id+"/decision", `{"decision": "maybe"}`)
	if resp.Status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown decision, got %d", resp.Status)
	}

	resp = do(t, srv, lead, http.MethodPost, "/api/v1/executions/"+id+"/decision",
		`{"decision": "approved", "comment": "ok"}`)
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.Status, resp.Body)
	}
	if got := resp.data(t)["status"]; got != string(domain.StatusCompleted) {
		t.Errorf("expected completed, got %v", got)
	}

	resp = do(t, srv, lead, http.MethodPost, "/api/v1/executions/"+id+"/decision", `{"decision": "rejected"}`)
	if resp.Status != http.StatusConflict {
		t.Errorf("expected 409 on second decision, got %d", resp.Status)
	}

	resp = do(t, srv, operator, http.MethodPost, "/api/v1/executions/"+id+"/cancel", "")
	if resp.Status != http.StatusConflict {
		t.Errorf("expected 409 cancelling completed execution, got %d", resp.Status)
	}

	decisions := do(t, srv, viewer, http.MethodGet, "/api/v1/executions/"+id+"/decisions", "")
	if total := decisions.Body["total"].(float64); total != 1 {
		t.Errorf("expected 1 decision, got %v", total)
	}
}

func TestCancelPending(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, operator, http.MethodPost, "/api/v1/runbooks/orphan_volume_cleanup/executions", "")
	id := resp.data(t)["execution_id"].(string)

	resp = do(t, srv, viewer, http.MethodPost, "/api/v1/executions/"+id+"/cancel", "")
	if resp.Status != http.StatusForbidden {
		t.Errorf("expected 403 for viewer cancel, got %d", resp.Status)
	}

	resp = do(t, srv, operator, http.MethodPost, "/api/v1/executions/"+id+"/cancel", "")
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.Status, resp.Body)
	}
	d := resp.data(t)
	if d["status"] != string(domain.StatusCancelled) {
		t.Errorf("expected cancelled, got %v", d["status"])
	}
	if d["cancelled_by"] != "olga" {
		t.Errorf("expected cancelled_by olga, got %v", d["cancelled_by"])
	}
}

func TestExecutionLookups(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, operator, http.MethodPost, "/api/v1/runbooks/stuck_vm_remediation/executions", "")
	do(t, srv, operator, http.MethodPost, "/api/v1/runbooks/orphan_volume_cleanup/executions", "")

	resp := do(t, srv, viewer, http.MethodGet, "/api/v1/executions?runbook=orphan_volume_cleanup", "")
	if total := resp.Body["total"].(float64); total != 1 {
		t.Errorf("expected 1 execution for runbook filter, got %v", total)
	}

	resp = do(t, srv, operator, http.MethodGet, "/api/v1/executions/mine", "")
	if total := resp.Body["total"].(float64); total != 2 {
		t.Errorf("expected 2 own executions, got %v", total)
	}
	resp = do(t, srv, lead, http.MethodGet, "/api/v1/executions/mine", "")
	if total := resp.Body["total"].(float64); total != 0 {
		t.Errorf("expected 0 own executions for lead, got %v", total)
	}

	resp = do(t, srv, viewer, http.MethodGet, "/api/v1/executions?status=bogus", "")
	if resp.Status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", resp.Status)
	}
	resp = do(t, srv, viewer, http.MethodGet, "/api/v1/executions?limit=x", "")
	if resp.Status != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", resp.Status)
	}

	resp = do(t, srv, viewer, http.MethodGet, "/api/v1/executions/not-a-uuid", "")
	if resp.Status != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", resp.Status)
	}
	resp = do(t, srv, viewer, http.MethodGet, "/api/v1/executions/7f0c4c1e-3f7b-4d53-9d0c-2d6a3c1e0b11", "")
	if resp.Status != http.StatusNotFound {
		t.Errorf("expected 404 for missing execution, got %d", resp.Status)
	}

	resp = do(t, srv, viewer, http.MethodGet, "/api/v1/stats", "")
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200 for stats, got %d", resp.Status)
	}
	if rbs := resp.data(t)["runbooks"].([]any); len(rbs) != 2 {
		t.Errorf("expected stats for 2 runbooks, got %d", len(rbs))
	}
}

func TestPolicyEndpoints(t *testing.T) {
	srv := newTestServer(t)

	body := `{"trigger_role": "sre_lead", "approver_role": "admin", "approval_mode": "single_approval", "escalation_timeout_minutes": 15}`

	resp := do(t, srv, operator, http.MethodPost, "/api/v1/runbooks/orphan_volume_cleanup/policies", body)
	if resp.Status != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", resp.Status)
	}

	resp = do(t, srv, admin, http.MethodPost, "/api/v1/runbooks/orphan_volume_cleanup/policies", body)
	if resp.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.Status, resp.Body)
	}
	if resp.data(t)["enabled"] != true {
		t.Errorf("expected policy enabled by default")
	}

	resp = do(t, srv, admin, http.MethodPost, "/api/v1/runbooks/orphan_volume_cleanup/policies", body)
	if resp.Status != http.StatusConflict {
		t.Errorf("expected 409 for duplicate policy, got %d", resp.Status)
	}

	resp = do(t, srv, admin, http.MethodPut, "/api/v1/runbooks/orphan_volume_cleanup/policies",
		`{"trigger_role": "sre_lead", "approver_role": "admin", "approval_mode": "teleport"}`)
	if resp.Status != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid mode, got %d", resp.Status)
	}

	resp = do(t, srv, admin, http.MethodPut, "/api/v1/runbooks/nope/policies", body)
	if resp.Status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown runbook, got %d", resp.Status)
	}

	list := do(t, srv, viewer, http.MethodGet, "/api/v1/runbooks/orphan_volume_cleanup/policies", "")
	if total := list.Body["total"].(float64); total != 2 {
		t.Errorf("expected 2 policies, got %v", total)
	}
}
