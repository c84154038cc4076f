package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/domain"
)

// --- HTTPRunbook Tests ---

func TestHTTPRunbook_Success(t *testing.T) {
	var received httpRunRequest
	var path, auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]any{
			"items_found":    2,
			"items_actioned": 0,
			"result":         map[string]any{"orphan_volumes": []string{"vol-1", "vol-2"}},
		})
	}))
	defer server.Close()

	rb := &HTTPRunbook{BaseURL: server.URL + "/", Token: "s3cret"}
	id := uuid.New()
	res, err := rb.Run(context.Background(), Request{
		ExecutionID: id,
		Runbook:     "orphan_volume_cleanup",
		DryRun:      true,
		Parameters:  map[string]any{"region": "eu-west"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if path != "/runbooks/orphan_volume_cleanup/run" {
		t.Errorf("unexpected path %q", path)
	}
	if auth != "Bearer s3cret" {
		t.Errorf("unexpected Authorization %q", auth)
	}
	if !received.DryRun || received.ExecutionID != id.String() {
		t.Errorf("unexpected request body %+v", received)
	}
	if received.Parameters["region"] != "eu-west" {
		t.Errorf("expected region param, got %v", received.Parameters)
	}
	if res.ItemsFound != 2 || res.ItemsActioned != 0 {
		t.Errorf("unexpected counters %+v", res)
	}
	if _, ok := res.Result["orphan_volumes"]; !ok {
		t.Errorf("expected orphan_volumes in result, got %v", res.Result)
	}
}

func TestHTTPRunbook_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("cloud api unavailable"))
	}))
	defer server.Close()

	rb := &HTTPRunbook{BaseURL: server.URL}
	_, err := rb.Run(context.Background(), Request{Runbook: "x"})
	if !errors.Is(err, ErrHTTPRequest) {
		t.Fatalf("expected ErrHTTPRequest, got %v", err)
	}
}

func TestHTTPRunbook_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	rb := &HTTPRunbook{BaseURL: server.URL}
	if _, err := rb.Run(context.Background(), Request{Runbook: "x"}); !errors.Is(err, ErrHTTPRequest) {
		t.Errorf("expected ErrHTTPRequest, got %v", err)
	}
}

// --- Dispatcher Tests ---

func TestDispatcher_UnknownRunbook(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	_, err := d.Run(context.Background(), uuid.New(), "nope", false, nil)
	if !errors.Is(err, ErrUnknownRunbook) {
		t.Errorf("expected ErrUnknownRunbook, got %v", err)
	}
}

func TestDispatcher_Fallback(t *testing.T) {
	r := NewRegistry()
	called := ""
	r.SetFallback(RunbookFunc(func(_ context.Context, req Request) (*domain.RunResult, error) {
		called = req.Runbook
		return &domain.RunResult{ItemsFound: 1}, nil
	}))

	d := NewDispatcher(DispatcherConfig{Registry: r})
	res, err := d.Run(context.Background(), uuid.New(), "external_only", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "external_only" || res.ItemsFound != 1 {
		t.Errorf("fallback not used: called=%q res=%+v", called, res)
	}
}

func TestDispatcher_PanicBecomesError(t *testing.T) {
	r := NewRegistry()
	r.Register("boom", RunbookFunc(func(context.Context, Request) (*domain.RunResult, error) {
		panic("nil map write")
	}))

	d := NewDispatcher(DispatcherConfig{Registry: r})
	_, err := d.Run(context.Background(), uuid.New(), "boom", false, nil)
	if !errors.Is(err, ErrRunnerPanic) {
		t.Errorf("expected ErrRunnerPanic, got %v", err)
	}
}

func TestDispatcher_TimeoutIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := NewRegistry()
	r.Register("hung", RunbookFunc(func(context.Context, Request) (*domain.RunResult, error) {
		<-release
		return &domain.RunResult{}, nil
	}))

	d := NewDispatcher(DispatcherConfig{Registry: r, DefaultTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := d.Run(context.Background(), uuid.New(), "hung", false, nil)
	if !errors.Is(err, ErrRunnerTimeout) {
		t.Fatalf("expected ErrRunnerTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("dispatcher did not return on timeout")
	}
}

type timeoutCatalog map[string]int

func (c timeoutCatalog) Get(name string) (*domain.Runbook, error) {
	sec, ok := c[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return &domain.Runbook{Name: name, TimeoutSec: sec}, nil
}

func TestDispatcher_PerRunbookTimeout(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		Catalog:        timeoutCatalog{"slow": 7},
		DefaultTimeout: time.Minute,
	})
	if got := d.timeoutFor("slow"); got != 7*time.Second {
		t.Errorf("expected 7s, got %s", got)
	}
	if got := d.timeoutFor("other"); got != time.Minute {
		t.Errorf("expected default, got %s", got)
	}
}

func TestDispatcher_NilResultNormalized(t *testing.T) {
	r := NewRegistry()
	r.Register("empty", RunbookFunc(func(context.Context, Request) (*domain.RunResult, error) {
		return nil, nil
	}))
	d := NewDispatcher(DispatcherConfig{Registry: r})
	res, err := d.Run(context.Background(), uuid.New(), "empty", true, nil)
	if err != nil || res == nil {
		t.Fatalf("expected empty result, got %v, %v", res, err)
	}
}

// --- Stub Tests ---

func TestStubs_DryRunHasNoActions(t *testing.T) {
	r := NewRegistry()
	RegisterStubs(r)
	d := NewDispatcher(DispatcherConfig{Registry: r})

	res, err := d.Run(context.Background(), uuid.New(), "stuck_vm_remediation", true,
		map[string]any{"max_age_minutes": int64(30)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ItemsActioned != 0 {
		t.Errorf("dry run must not action items, got %d", res.ItemsActioned)
	}
	vms, ok := res.Result["stuck_vms"].([]any)
	if !ok || len(vms) != 2 || res.ItemsFound != 2 {
		t.Errorf("expected 2 stuck vms, got %v", res.Result["stuck_vms"])
	}

	live, err := d.Run(context.Background(), uuid.New(), "stuck_vm_remediation", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if live.ItemsActioned != 3 {
		t.Errorf("expected 3 actioned in live run, got %d", live.ItemsActioned)
	}
}
