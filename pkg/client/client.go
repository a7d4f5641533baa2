package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the task queue HTTP API.
type Client struct {
	baseURL string
	opts    *options
}

// New creates a new Client.
func New(baseURL string, opts ...Option) (*Client, error) {
	// Ensure URL doesn't have trailing slash for consistency
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{baseURL: baseURL, opts: o}, nil
}

// SubmitTaskRequest describes a task to submit.
type SubmitTaskRequest struct {
	Function    string         `json:"function"`
	Kwargs      map[string]any `json:"kwargs,omitempty"`
	Creator     int64          `json:"creator"`
	RequiresTag string         `json:"requires_tag,omitempty"`
	Retries     *int           `json:"retries,omitempty"`
}

// WorkerInfo describes a registered worker row.
type WorkerInfo struct {
	ID              int64     `json:"id"`
	Tag             string    `json:"tag"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	WorkingOnTaskID *int64    `json:"working_on_task_id,omitempty"`
}

// TaskInfo describes a task row as returned by the list endpoint.
type TaskInfo struct {
	ID          int64     `json:"id"`
	Creator     int64     `json:"creator"`
	Owner       int64     `json:"owner"`
	Status      string    `json:"status"`
	Retries     int       `json:"retries"`
	RequiresTag string    `json:"requires_tag,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// SubmitTask submits a task and returns its id.
func (c *Client) SubmitTask(ctx context.Context, req SubmitTaskRequest) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, http.StatusCreated, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// GetStatus returns a task's lifecycle state as a string
// (pending, running, error, done, timeout).
func (c *Client) GetStatus(ctx context.Context, taskID int64) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/api/v1/tasks/%d", taskID)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// GetResult returns a task's result document, or nil while there is none.
func (c *Client) GetResult(ctx context.Context, taskID int64) (json.RawMessage, error) {
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	path := fmt.Sprintf("/api/v1/tasks/%d/result", taskID)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	if len(out.Result) == 0 || string(out.Result) == "null" {
		return nil, nil
	}
	return out.Result, nil
}

// ListTasks lists tasks submitted under a creator tag.
func (c *Client) ListTasks(ctx context.Context, creator int64) ([]TaskInfo, error) {
	var out struct {
		Tasks []TaskInfo `json:"tasks"`
	}
	path := "/api/v1/tasks?creator=" + strconv.FormatInt(creator, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// ListWorkers lists every registered worker.
func (c *Client) ListWorkers(ctx context.Context) ([]WorkerInfo, error) {
	var out struct {
		Workers []WorkerInfo `json:"workers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/workers", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Workers, nil
}

// KillWorkers deletes the rows of all workers carrying tag; each exits
// at its next heartbeat.
func (c *Client) KillWorkers(ctx context.Context, tag string) (int64, error) {
	var out struct {
		Killed int64 `json:"killed"`
	}
	path := "/api/v1/workers?tag=" + url.QueryEscape(tag)
	if err := c.do(ctx, http.MethodDelete, path, nil, http.StatusOK, &out); err != nil {
		return 0, err
	}
	return out.Killed, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
