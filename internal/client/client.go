package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Коды ошибок API (дублируются из api/response.go, клиент не импортирует internal/api).
const (
	CodeValidation        = 100
	CodeJobNotFound       = 101
	CodeInvalidJobState   = 102
	CodeUnknownProcess    = 103
	CodeNotAvailable      = 104
	CodeEntryNotFound     = 105
	CodeInvalidTransition = 106
	CodeUnauthorized      = 401
	CodeInternal          = 500
)

// APIError — ошибка из конверта ответа.
type APIError struct {
	Code       int
	Message    string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// IsCode проверяет, что err — APIError с данным кодом.
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// --- Response types (дублируются из api/dto.go) ---

// Progress — прогресс процесса.
type Progress struct {
	Total       int64   `json:"total"`
	Done        int64   `json:"done"`
	PercentDone float64 `json:"percent_done"`
}

// Entry — запись истории процесса.
type Entry struct {
	ID          string    `json:"id"`
	ProcessCode string    `json:"process_code"`
	State       string    `json:"state"`
	StartedAt   string    `json:"started_at,omitempty"`
	FinishedAt  string    `json:"finished_at,omitempty"`
	Progress    *Progress `json:"progress,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

// Admission — ответ process_request / process_initiate.
type Admission struct {
	JobID       int64  `json:"job_id"`
	ProcessCode string `json:"process_code"`
	Entry       Entry  `json:"entry"`
}

// EntryResult — ответ process_done / process_fail / process_progress.
type EntryResult struct {
	JobID int64 `json:"job_id"`
	Entry Entry `json:"entry"`
}

// Metadata — значение metadata по ключу. Value == nil — ключа нет.
type Metadata struct {
	JobID int64           `json:"job_id"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Exists сообщает, есть ли значение.
func (m *Metadata) Exists() bool {
	return len(m.Value) > 0 && string(m.Value) != "null"
}

// Job — job с историей.
type Job struct {
	ID        int64          `json:"id"`
	State     string         `json:"state"`
	Metadata  map[string]any `json:"metadata"`
	History   []Entry        `json:"history"`
	Next      []string       `json:"next"`
	CreatedAt string         `json:"created_at"`
}

// Condition — условие depends_on.
type Condition struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Process — тип процесса из каталога.
type Process struct {
	Code             string      `json:"code"`
	AllowedProcesses int         `json:"allowed_processes"`
	Manual           bool        `json:"manual"`
	DependsOn        []Condition `json:"depends_on,omitempty"`
	Requires         []string    `json:"requires,omitempty"`
	Position         int         `json:"position"`
}

// FlowParameter — параметр flow из каталога.
type FlowParameter struct {
	Code      string      `json:"code"`
	Type      string      `json:"type"`
	Values    []string    `json:"values,omitempty"`
	DependsOn []Condition `json:"depends_on,omitempty"`
}

// Catalog — ответ /api/processes.
type Catalog struct {
	Processes      []Process       `json:"processes"`
	FlowParameters []FlowParameter `json:"flow_parameters"`
	Order          []string        `json:"order"`
}

// Automatic возвращает коды процессов, которые можно запрашивать через process_request.
func (c *Catalog) Automatic() []string {
	var codes []string
	for _, p := range c.Processes {
		if !p.Manual {
			codes = append(codes, p.Code)
		}
	}
	return codes
}

// --- API response wrapper ---

type envelope struct {
	Status struct {
		Code  int `json:"code"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"status"`
	Data json.RawMessage `json:"data"`
}

// --- Client ---

// Client — HTTP-клиент для dflow API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New создаёт клиент для API. Пустой apiKey — без заголовка X-Api-Key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL возвращает адрес API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Processes ---

// RequestProcess запрашивает job для процесса.
func (c *Client) RequestProcess(ctx context.Context, code string) (*Admission, error) {
	var out Admission
	err := c.call(ctx, "/api/process_request", url.Values{"process_code": {code}}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateProcess запускает процесс на конкретном job'е.
func (c *Client) InitiateProcess(ctx context.Context, jobID int64, code string) (*Admission, error) {
	var out Admission
	if err := c.call(ctx, "/api/process_initiate", jobParams(jobID, code), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessDone завершает процесс.
func (c *Client) ProcessDone(ctx context.Context, jobID int64, code string) (*EntryResult, error) {
	var out EntryResult
	if err := c.call(ctx, "/api/process_done", jobParams(jobID, code), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessFail переводит процесс в FAILED.
func (c *Client) ProcessFail(ctx context.Context, jobID int64, code, reason string) (*EntryResult, error) {
	params := jobParams(jobID, code)
	if reason != "" {
		params.Set("reason", reason)
	}
	var out EntryResult
	if err := c.call(ctx, "/api/process_fail", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessProgress записывает прогресс процесса.
func (c *Client) ProcessProgress(ctx context.Context, jobID int64, code string, p Progress) (*EntryResult, error) {
	params := jobParams(jobID, code)
	params.Set("progress_info[total]", strconv.FormatInt(p.Total, 10))
	params.Set("progress_info[done]", strconv.FormatInt(p.Done, 10))
	params.Set("progress_info[percent_done]", strconv.FormatFloat(p.PercentDone, 'f', -1, 64))

	var out EntryResult
	if err := c.call(ctx, "/api/process_progress", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Jobs ---

// GetJob возвращает job с историей.
func (c *Client) GetJob(ctx context.Context, id int64) (*Job, error) {
	var out Job
	if err := c.call(ctx, "/api/jobs/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobMetadata возвращает значение metadata по ключу.
func (c *Client) JobMetadata(ctx context.Context, jobID int64, key string) (*Metadata, error) {
	params := url.Values{
		"job_id": {strconv.FormatInt(jobID, 10)},
		"key":    {key},
	}
	var out Metadata
	if err := c.call(ctx, "/api/job_metadata", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMetadata сохраняет значение metadata. value — JSON.
func (c *Client) UpdateMetadata(ctx context.Context, jobID int64, key string, value json.RawMessage) (*Metadata, error) {
	params := url.Values{
		"job_id":   {strconv.FormatInt(jobID, 10)},
		"key":      {key},
		"metadata": {string(value)},
	}
	var out Metadata
	if err := c.call(ctx, "/api/update_metadata", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Catalog возвращает каталог процессов.
func (c *Client) Catalog(ctx context.Context) (*Catalog, error) {
	var out Catalog
	if err := c.call(ctx, "/api/processes", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- HTTP helpers ---

func jobParams(jobID int64, code string) url.Values {
	return url.Values{
		"job_id":       {strconv.FormatInt(jobID, 10)},
		"process_code": {code},
	}
}

// call выполняет GET-запрос и разбирает конверт.
func (c *Client) call(ctx context.Context, path string, params url.Values, result any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unexpected response (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if env.Status.Code != 0 || env.Status.Error != nil {
		apiErr := &APIError{HTTPStatus: resp.StatusCode, Code: CodeInternal, Message: http.StatusText(resp.StatusCode)}
		if env.Status.Error != nil {
			apiErr.Code = env.Status.Error.Code
			apiErr.Message = env.Status.Error.Message
		}
		return apiErr
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
