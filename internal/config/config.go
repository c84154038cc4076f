// Package config собирает конфигурацию бинарников из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Runbooks/internal/blob"
	"github.com/shaiso/Runbooks/internal/orchestrator"
)

// Режимы аутентификации API.
const (
	AuthJWT    = "jwt"
	AuthHeader = "header"
)

// ErrInvalidConfig — переменная окружения с недопустимым значением.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация всех бинарников.
type Config struct {
	// DBURL — DSN PostgreSQL. Пустой — локальная dev-БД.
	DBURL string

	// UseMemory — хранить всё в памяти (без PostgreSQL).
	UseMemory bool

	// RabbitURL — адрес брокера. Пустой — адрес по умолчанию.
	RabbitURL string

	APIPort    string
	WorkerPort string
	SchedPort  string

	// CatalogFile — YAML seed каталога.
	CatalogFile string

	// CatalogWatch — перечитывать каталог при изменении файла.
	CatalogWatch bool

	// DispatchMode — sync или async.
	DispatchMode string

	// RunnerBaseURL — внешний endpoint автоматизаций. Пустой — dev-заглушки.
	RunnerBaseURL string
	RunnerTimeout time.Duration

	// AuthMode — jwt или header.
	AuthMode  string
	JWTSecret string

	AdminRole string

	// EscalationSchedule — cron-расписание escalation sweep.
	EscalationSchedule string

	// WorkerPollInterval — интервал polling queued executions.
	WorkerPollInterval time.Duration

	Blob blob.Config

	// ResultOffloadBytes — результат больше этого размера уходит в object storage.
	ResultOffloadBytes int
}

// Load читает конфигурацию из окружения и проверяет её.
func Load() (*Config, error) {
	cfg := &Config{
		DBURL:              os.Getenv("DB_URL"),
		UseMemory:          envBool("STORE_MEMORY", false),
		RabbitURL:          os.Getenv("RABBITMQ_URL"),
		APIPort:            envOr("API_PORT", "8080"),
		WorkerPort:         envOr("WORKER_PORT", "8082"),
		SchedPort:          envOr("SCHED_PORT", "8081"),
		CatalogFile:        envOr("CATALOG_FILE", "runbooks.yaml"),
		CatalogWatch:       envBool("CATALOG_WATCH", true),
		DispatchMode:       strings.ToLower(envOr("DISPATCH_MODE", orchestrator.DispatchSync)),
		RunnerBaseURL:      os.Getenv("RUNNER_BASE_URL"),
		RunnerTimeout:      time.Duration(envInt("RUNNER_TIMEOUT_SEC", 300)) * time.Second,
		AuthMode:           strings.ToLower(envOr("AUTH_MODE", AuthJWT)),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AdminRole:          envOr("ADMIN_ROLE", "admin"),
		EscalationSchedule: envOr("ESCALATION_SCHEDULE", "*/2 * * * *"),
		WorkerPollInterval: time.Duration(envInt("WORKER_POLL_SEC", 10)) * time.Second,
		Blob: blob.Config{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envOr("MINIO_BUCKET", "runbook-results"),
			Region:    os.Getenv("MINIO_REGION"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		ResultOffloadBytes: envInt("RESULT_OFFLOAD_BYTES", 262144),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	var errs []error

	switch c.DispatchMode {
	case orchestrator.DispatchSync, orchestrator.DispatchAsync:
	default:
		errs = append(errs, fmt.Errorf("%w: DISPATCH_MODE must be sync or async, got %q", ErrInvalidConfig, c.DispatchMode))
	}

	switch c.AuthMode {
	case AuthJWT:
		if c.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("%w: JWT_SECRET is required when AUTH_MODE=jwt", ErrInvalidConfig))
		}
	case AuthHeader:
	default:
		errs = append(errs, fmt.Errorf("%w: AUTH_MODE must be jwt or header, got %q", ErrInvalidConfig, c.AuthMode))
	}

	if c.RunnerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: RUNNER_TIMEOUT_SEC must be positive", ErrInvalidConfig))
	}
	if c.ResultOffloadBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: RESULT_OFFLOAD_BYTES must not be negative", ErrInvalidConfig))
	}
	if c.Blob.Enabled() {
		if err := c.Blob.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Addr возвращает адрес для http.ListenAndServe.
func Addr(port string) string {
	return ":" + port
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
