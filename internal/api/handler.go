package api

import (
	"log/slog"

	"github.com/shaiso/Runbooks/internal/auth"
	"github.com/shaiso/Runbooks/internal/orchestrator"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orch     *orchestrator.Orchestrator
	resolver auth.Resolver
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orchestrator *orchestrator.Orchestrator

	// Resolver — определение вызывающего (default: auth.HeaderResolver).
	Resolver auth.Resolver

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = auth.HeaderResolver{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		orch:     cfg.Orchestrator,
		resolver: resolver,
		logger:   logger,
	}
}
