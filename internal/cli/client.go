package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunbookResponse — запись каталога из API.
type RunbookResponse struct {
	Name             string                    `json:"name"`
	DisplayName      string                    `json:"display_name"`
	Description      string                    `json:"description,omitempty"`
	Category         string                    `json:"category"`
	RiskLevel        string                    `json:"risk_level"`
	SupportsDryRun   bool                      `json:"supports_dry_run"`
	Enabled          bool                      `json:"enabled"`
	TimeoutSec       int                       `json:"timeout_sec,omitempty"`
	ParametersSchema map[string]map[string]any `json:"parameters_schema"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID                string         `json:"execution_id"`
	RunbookName       string         `json:"runbook_name"`
	Status            string         `json:"status"`
	Version           int            `json:"version"`
	DryRun            bool           `json:"dry_run"`
	Parameters        map[string]any `json:"parameters"`
	ApprovalMode      string         `json:"approval_mode"`
	ApproverRole      string         `json:"approver_role"`
	RequiredApprovals int            `json:"required_approvals"`
	RateLimited       bool           `json:"rate_limited,omitempty"`
	TriggeredBy       string         `json:"triggered_by"`
	TriggeredAt       string         `json:"triggered_at"`
	ApprovedBy        string         `json:"approved_by,omitempty"`
	CancelledBy       string         `json:"cancelled_by,omitempty"`
	CompletedAt       string         `json:"completed_at,omitempty"`
	Escalated         bool           `json:"escalated"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ItemsFound        int            `json:"items_found"`
	ItemsActioned     int            `json:"items_actioned"`
	DurationMs        int64          `json:"duration_ms,omitempty"`
}

// TriggerResponse — ответ на запуск.
type TriggerResponse struct {
	ExecutionResponse
	Note string `json:"note,omitempty"`
}

// TransitionResponse — запись журнала.
type TransitionResponse struct {
	From  string `json:"from_status"`
	To    string `json:"to_status"`
	Actor string `json:"actor"`
	At    string `json:"at"`
	Note  string `json:"note,omitempty"`
}

// DecisionResponse — голос approver'а.
type DecisionResponse struct {
	Approver string `json:"approver"`
	Role     string `json:"role"`
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
	At       string `json:"at"`
}

// PolicyResponse — политика одобрения из API.
type PolicyResponse struct {
	ID                       string `json:"policy_id"`
	RunbookName              string `json:"runbook_name"`
	TriggerRole              string `json:"trigger_role"`
	ApproverRole             string `json:"approver_role"`
	Mode                     string `json:"approval_mode"`
	RequiredApprovals        int    `json:"required_approvals,omitempty"`
	EscalationTimeoutMinutes int    `json:"escalation_timeout_minutes"`
	MaxAutoExecutionsPerDay  int    `json:"max_auto_executions_per_day"`
	Enabled                  bool   `json:"enabled"`
}

// StatsResponse — агрегаты из API.
type StatsResponse struct {
	GeneratedAt string `json:"generated_at"`
	Runbooks    []struct {
		RunbookName        string `json:"runbook_name"`
		Total              int    `json:"total"`
		Completed          int    `json:"completed"`
		Failed             int    `json:"failed"`
		Pending            int    `json:"pending"`
		Rejected           int    `json:"rejected"`
		TotalItemsFound    int    `json:"total_items_found"`
		TotalItemsActioned int    `json:"total_items_actioned"`
		LastRun            string `json:"last_run,omitempty"`
	} `json:"runbooks"`
}

// --- Request types ---

// TriggerRequest — запуск runbook'а.
type TriggerRequest struct {
	DryRun     bool           `json:"dry_run,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// PolicyRequest — тело политики. Читается из YAML-файла.
type PolicyRequest struct {
	TriggerRole              string `json:"trigger_role" yaml:"trigger_role"`
	ApproverRole             string `json:"approver_role" yaml:"approver_role"`
	Mode                     string `json:"approval_mode" yaml:"approval_mode"`
	RequiredApprovals        int    `json:"required_approvals,omitempty" yaml:"required_approvals"`
	EscalationTimeoutMinutes int    `json:"escalation_timeout_minutes" yaml:"escalation_timeout_minutes"`
	MaxAutoExecutionsPerDay  int    `json:"max_auto_executions_per_day" yaml:"max_auto_executions_per_day"`
	Enabled                  *bool  `json:"enabled,omitempty" yaml:"enabled"`
}

// ListExecutionsOpts — параметры фильтрации истории.
type ListExecutionsOpts struct {
	Runbook string
	Status  string
	Limit   int
	Offset  int
}

func (o ListExecutionsOpts) values() url.Values {
	params := url.Values{}
	if o.Runbook != "" {
		params.Set("runbook", o.Runbook)
	}
	if o.Status != "" {
		params.Set("status", o.Status)
	}
	if o.Limit > 0 {
		params.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		params.Set("offset", strconv.Itoa(o.Offset))
	}
	return params
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param,omitempty"`
	} `json:"error"`
}

// APIError — ошибка, вернувшаяся из API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Identity — как CLI представляется API.
// Token имеет приоритет над Principal/Role.
type Identity struct {
	Token     string
	Principal string
	Role      string
}

// Client — HTTP-клиент для Runbooks API.
type Client struct {
	baseURL    string
	identity   Identity
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string, identity Identity) *Client {
	return &Client{
		baseURL:  baseURL,
		identity: identity,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Runbooks ---

// ListRunbooks возвращает каталог.
func (c *Client) ListRunbooks() ([]RunbookResponse, error) {
	var list []RunbookResponse
	_, err := c.list("/api/v1/runbooks", nil, &list)
	return list, err
}

// GetRunbook возвращает runbook по имени.
func (c *Client) GetRunbook(name string) (*RunbookResponse, error) {
	var rb RunbookResponse
	err := c.get("/api/v1/runbooks/"+url.PathEscape(name), &rb)
	return &rb, err
}

// --- Executions ---

// Trigger запускает runbook.
func (c *Client) Trigger(name string, req TriggerRequest) (*TriggerResponse, error) {
	var resp TriggerResponse
	err := c.post("/api/v1/runbooks/"+url.PathEscape(name)+"/executions", req, &resp)
	return &resp, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.get("/api/v1/executions/"+url.PathEscape(id), &exec)
	return &exec, err
}

// ListExecutions возвращает страницу истории и общее количество.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, int, error) {
	var list []ExecutionResponse
	total, err := c.list("/api/v1/executions", opts.values(), &list)
	return list, total, err
}

// ListMine возвращает executions вызывающего.
func (c *Client) ListMine(opts ListExecutionsOpts) ([]ExecutionResponse, int, error) {
	var list []ExecutionResponse
	total, err := c.list("/api/v1/executions/mine", opts.values(), &list)
	return list, total, err
}

// Transitions возвращает журнал переходов.
func (c *Client) Transitions(id string) ([]TransitionResponse, error) {
	var list []TransitionResponse
	_, err := c.list("/api/v1/executions/"+url.PathEscape(id)+"/transitions", nil, &list)
	return list, err
}

// Decisions возвращает голоса approver'ов.
func (c *Client) Decisions(id string) ([]DecisionResponse, error) {
	var list []DecisionResponse
	_, err := c.list("/api/v1/executions/"+url.PathEscape(id)+"/decisions", nil, &list)
	return list, err
}

// Cancel отменяет execution.
func (c *Client) Cancel(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post("/api/v1/executions/"+url.PathEscape(id)+"/cancel", nil, &exec)
	return &exec, err
}

// --- Approvals ---

// Pending возвращает очередь одобрений.
func (c *Client) Pending() ([]ExecutionResponse, error) {
	var list []ExecutionResponse
	_, err := c.list("/api/v1/approvals/pending", nil, &list)
	return list, err
}

// Decide отправляет решение approver'а.
func (c *Client) Decide(id, decision, comment string) (*ExecutionResponse, error) {
	body := map[string]string{"decision": decision, "comment": comment}
	var exec ExecutionResponse
	err := c.post("/api/v1/executions/"+url.PathEscape(id)+"/decision", body, &exec)
	return &exec, err
}

// --- Policies ---

// ListPolicies возвращает политики runbook'а.
func (c *Client) ListPolicies(name string) ([]PolicyResponse, error) {
	var list []PolicyResponse
	_, err := c.list("/api/v1/runbooks/"+url.PathEscape(name)+"/policies", nil, &list)
	return list, err
}

// PutPolicy создаёт или заменяет политику.
func (c *Client) PutPolicy(name string, req PolicyRequest) (*PolicyResponse, error) {
	var p PolicyResponse
	err := c.put("/api/v1/runbooks/"+url.PathEscape(name)+"/policies", req, &p)
	return &p, err
}

// --- Stats ---

// Stats возвращает агрегаты по runbook'ам.
func (c *Client) Stats() (*StatsResponse, error) {
	var s StatsResponse
	err := c.get("/api/v1/stats", &s)
	return &s, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) (int, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	return c.httpClient.Do(req)
}

func (c *Client) authorize(req *http.Request) {
	if c.identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.identity.Token)
		return
	}
	if c.identity.Principal != "" {
		req.Header.Set("X-Runbook-Principal", c.identity.Principal)
	}
	if c.identity.Role != "" {
		req.Header.Set("X-Runbook-Role", c.identity.Role)
	}
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}

	msg := er.Error.Message
	if er.Error.Param != "" && msg == "" {
		msg = "parameter " + er.Error.Param
	}
	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: msg}
}
