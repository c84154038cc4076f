package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/Runbooks/internal/domain"
)

const seedYAML = `
runbooks:
  - name: stuck_vm_remediation
    display_name: Stuck VM remediation
    category: remediation
    risk_level: medium
    supports_dry_run: true
    enabled: true
    parameters:
      max_age_minutes:
        type: integer
        default: 30
        min: 5
        max: 1440
      region:
        type: string
        required: true
        enum: [eu-west, us-east]
  - name: orphan_volume_cleanup
    category: cleanup
    risk_level: high
    enabled: true
policies:
  - runbook_name: stuck_vm_remediation
    trigger_role: operator
    approver_role: sre_lead
    approval_mode: auto_approve
    max_auto_executions_per_day: 10
    enabled: true
`

func int64p(v int64) *int64 { return &v }

func testRunbook() *domain.Runbook {
	return &domain.Runbook{
		Name:    "stuck_vm_remediation",
		Enabled: true,
		ParametersSchema: map[string]domain.ParamDef{
			"max_age_minutes": {Type: "integer", Default: 30, Min: int64p(5), Max: int64p(1440)},
			"region":          {Type: "string", Required: true, Enum: []string{"eu-west", "us-east"}},
			"threshold":       {Type: "number", Max: int64p(1)},
			"force":           {Type: "boolean"},
		},
	}
}

func TestParse_Seed(t *testing.T) {
	seed, err := Parse([]byte(seedYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(seed.Runbooks) != 2 {
		t.Fatalf("expected 2 runbooks, got %d", len(seed.Runbooks))
	}
	if len(seed.Policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(seed.Policies))
	}

	rb := seed.Runbooks[0]
	if !rb.SupportsDryRun {
		t.Error("expected supports_dry_run=true")
	}
	def := rb.ParametersSchema["max_age_minutes"]
	if def.Min == nil || *def.Min != 5 {
		t.Errorf("expected min=5, got %v", def.Min)
	}
	if seed.Policies[0].Mode != domain.ApprovalAuto {
		t.Errorf("expected auto_approve, got %s", seed.Policies[0].Mode)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("runbooks: [\n"))
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Errorf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestCatalog_GetAndList(t *testing.T) {
	seed, err := Parse([]byte(seedYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	c, err := New(seed.Runbooks)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 runbooks, got %d", len(list))
	}
	if list[0].Name != "orphan_volume_cleanup" {
		t.Errorf("expected sorted list, first is %s", list[0].Name)
	}

	rb, err := c.Get("stuck_vm_remediation")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rb.ID != "stuck_vm_remediation" {
		t.Errorf("expected ID defaulted to name, got %q", rb.ID)
	}

	_, err = c.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalog_ReplaceRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		runbooks []domain.Runbook
	}{
		{
			name:     "empty name",
			runbooks: []domain.Runbook{{Name: ""}},
		},
		{
			name:     "duplicate",
			runbooks: []domain.Runbook{{Name: "a"}, {Name: "a"}},
		},
		{
			name:     "bad risk",
			runbooks: []domain.Runbook{{Name: "a", RiskLevel: "extreme"}},
		},
		{
			name: "bad param type",
			runbooks: []domain.Runbook{{Name: "a", ParametersSchema: map[string]domain.ParamDef{
				"x": {Type: "array"},
			}}},
		},
		{
			name: "default out of range",
			runbooks: []domain.Runbook{{Name: "a", ParametersSchema: map[string]domain.ParamDef{
				"x": {Type: "integer", Default: 0, Min: int64p(1)},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New([]domain.Runbook{{Name: "keep"}})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			err = c.Replace(tt.runbooks)
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("expected ErrInvalidCatalog, got %v", err)
			}
			if _, err := c.Get("keep"); err != nil {
				t.Errorf("catalog must stay unchanged after failed Replace: %v", err)
			}
		})
	}
}

func TestValidateParams_DefaultsAndCoercion(t *testing.T) {
	rb := testRunbook()

	out, err := ValidateParams(rb, map[string]any{
		"region":    "eu-west",
		"threshold": "0.5",
		"force":     "true",
	})
	if err != nil {
		t.Fatalf("ValidateParams failed: %v", err)
	}

	if out["max_age_minutes"] != int64(30) {
		t.Errorf("expected default 30 as int64, got %#v", out["max_age_minutes"])
	}
	if out["threshold"] != 0.5 {
		t.Errorf("expected threshold 0.5, got %#v", out["threshold"])
	}
	if out["force"] != true {
		t.Errorf("expected force=true, got %#v", out["force"])
	}
}

func TestValidateParams_JSONNumbers(t *testing.T) {
	rb := testRunbook()

	out, err := ValidateParams(rb, map[string]any{
		"region":          "us-east",
		"max_age_minutes": float64(60),
	})
	if err != nil {
		t.Fatalf("ValidateParams failed: %v", err)
	}
	if out["max_age_minutes"] != int64(60) {
		t.Errorf("expected 60, got %#v", out["max_age_minutes"])
	}
}

func TestValidateParams_Errors(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		param   string
		wantErr error
	}{
		{
			name:    "missing required",
			params:  map[string]any{},
			param:   "region",
			wantErr: ErrMissingParameter,
		},
		{
			name:    "unknown parameter",
			params:  map[string]any{"region": "eu-west", "rm_rf": true},
			param:   "rm_rf",
			wantErr: ErrUnknownParameter,
		},
		{
			name:    "enum violation",
			params:  map[string]any{"region": "mars"},
			param:   "region",
			wantErr: ErrNotInEnum,
		},
		{
			name:    "below min",
			params:  map[string]any{"region": "eu-west", "max_age_minutes": 1},
			param:   "max_age_minutes",
			wantErr: ErrOutOfRange,
		},
		{
			name:    "above max",
			params:  map[string]any{"region": "eu-west", "max_age_minutes": 5000},
			param:   "max_age_minutes",
			wantErr: ErrOutOfRange,
		},
		{
			name:    "fractional integer",
			params:  map[string]any{"region": "eu-west", "max_age_minutes": 10.5},
			param:   "max_age_minutes",
			wantErr: ErrInvalidType,
		},
		{
			name:    "string for string type",
			params:  map[string]any{"region": 42},
			param:   "region",
			wantErr: ErrInvalidType,
		},
		{
			name:    "bad boolean",
			params:  map[string]any{"region": "eu-west", "force": "maybe"},
			param:   "force",
			wantErr: ErrInvalidType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(testRunbook(), tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if vErr.Param != tt.param {
				t.Errorf("expected param %q, got %q", tt.param, vErr.Param)
			}
		})
	}
}

func TestValidateParams_DoesNotMutateInput(t *testing.T) {
	params := map[string]any{"region": "eu-west"}
	if _, err := ValidateParams(testRunbook(), params); err != nil {
		t.Fatalf("ValidateParams failed: %v", err)
	}
	if len(params) != 1 {
		t.Errorf("input map was mutated: %v", params)
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbooks.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	seed, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	c, err := New(seed.Runbooks)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	reloaded := make(chan int, 4)
	w, err := NewWatcher(WatcherConfig{
		Path:     path,
		Catalog:  c,
		Debounce: 20 * time.Millisecond,
		OnReload: func(_ context.Context, s *Seed) { reloaded <- len(s.Runbooks) },
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	updated := "runbooks:\n  - name: security_audit\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-reloaded:
		if n != 1 {
			t.Errorf("expected 1 runbook after reload, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("catalog was not reloaded")
	}

	if _, err := c.Get("security_audit"); err != nil {
		t.Errorf("expected security_audit after reload: %v", err)
	}
	if _, err := c.Get("stuck_vm_remediation"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old runbook gone, got %v", err)
	}
}

func TestWatcher_InvalidFileKeepsCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbooks.yaml")
	if err := os.WriteFile(path, []byte("runbooks: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := New([]domain.Runbook{{Name: "keep"}})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(WatcherConfig{Path: path, Catalog: c})
	if err != nil {
		t.Fatal(err)
	}
	defer w.watcher.Close()

	if err := w.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if _, err := c.Get("keep"); err != nil {
		t.Errorf("catalog must stay unchanged: %v", err)
	}
}
