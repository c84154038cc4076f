package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIPort != "8080" || cfg.WorkerPort != "8082" || cfg.SchedPort != "8081" {
		t.Errorf("unexpected ports %s/%s/%s", cfg.APIPort, cfg.WorkerPort, cfg.SchedPort)
	}
	if cfg.DispatchMode != "sync" {
		t.Errorf("expected sync dispatch, got %s", cfg.DispatchMode)
	}
	if cfg.AuthMode != AuthJWT {
		t.Errorf("expected jwt auth, got %s", cfg.AuthMode)
	}
	if cfg.RunnerTimeout != 300*time.Second {
		t.Errorf("expected 300s runner timeout, got %v", cfg.RunnerTimeout)
	}
	if cfg.EscalationSchedule != "*/2 * * * *" {
		t.Errorf("unexpected escalation schedule %q", cfg.EscalationSchedule)
	}
	if cfg.ResultOffloadBytes != 262144 {
		t.Errorf("unexpected offload threshold %d", cfg.ResultOffloadBytes)
	}
	if !cfg.CatalogWatch {
		t.Error("expected catalog watch enabled by default")
	}
	if cfg.Blob.Enabled() {
		t.Error("expected blob storage disabled without MINIO_ENDPOINT")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_MODE", "header")
	t.Setenv("DISPATCH_MODE", "ASYNC")
	t.Setenv("API_PORT", "9090")
	t.Setenv("RUNNER_TIMEOUT_SEC", "45")
	t.Setenv("CATALOG_WATCH", "false")
	t.Setenv("ADMIN_ROLE", "platform_admin")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DispatchMode != "async" {
		t.Errorf("expected async, got %s", cfg.DispatchMode)
	}
	if Addr(cfg.APIPort) != ":9090" {
		t.Errorf("unexpected addr %s", Addr(cfg.APIPort))
	}
	if cfg.RunnerTimeout != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.RunnerTimeout)
	}
	if cfg.CatalogWatch {
		t.Error("expected catalog watch disabled")
	}
	if cfg.AdminRole != "platform_admin" {
		t.Errorf("unexpected admin role %s", cfg.AdminRole)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "jwt without secret", env: map[string]string{"AUTH_MODE": "jwt"}},
		{name: "unknown auth mode", env: map[string]string{"AUTH_MODE": "ldap"}},
		{name: "unknown dispatch mode", env: map[string]string{"AUTH_MODE": "header", "DISPATCH_MODE": "batch"}},
		{name: "zero runner timeout", env: map[string]string{"AUTH_MODE": "header", "RUNNER_TIMEOUT_SEC": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
