package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shaiso/Runbooks/internal/domain"
)

const maxResponseBytes = 16 << 20

// HTTPRunbook — runbook'и, реализованные во внешнем automation сервисе.
//
// Запрос:
//
//	POST {BaseURL}/runbooks/{name}/run
//	{"execution_id": "...", "dry_run": true, "parameters": {...}}
//
// Ответ 2xx:
//
//	{"items_found": 3, "items_actioned": 0, "result": {...}}
//
// Любой другой код — ошибка с началом тела ответа в сообщении.
type HTTPRunbook struct {
	BaseURL string
	Client  *http.Client

	// Token — bearer токен для automation сервиса (опционально).
	Token string
}

type httpRunRequest struct {
	ExecutionID string         `json:"execution_id"`
	DryRun      bool           `json:"dry_run"`
	Parameters  map[string]any `json:"parameters"`
}

// Run вызывает внешний endpoint. Таймаут берётся из ctx.
func (h *HTTPRunbook) Run(ctx context.Context, req Request) (*domain.RunResult, error) {
	if h.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is not configured", ErrHTTPRequest)
	}

	body, err := json.Marshal(httpRunRequest{
		ExecutionID: req.ExecutionID.String(),
		DryRun:      req.DryRun,
		Parameters:  req.Parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
	}

	endpoint := strings.TrimRight(h.BaseURL, "/") + "/runbooks/" + url.PathEscape(req.Runbook) + "/run"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	var result domain.RunResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrHTTPRequest, err)
	}
	return &result, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
