// Package client is a typed HTTP client for the deployment API.
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

// Client provides typed access to the Catalyst deployment API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// SourceFile is one file of a deployment.
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// DeployInput is the payload for a new deployment.
type DeployInput struct {
	ProjectID   string       `json:"project_id"`
	ProjectName string       `json:"project_name"`
	Files       []SourceFile `json:"files"`
	CPULimit    int          `json:"cpu_limit,omitempty"`
	MemoryLimit int          `json:"memory_limit,omitempty"`
}

// Deployment represents API deployment payloads.
type Deployment struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	ProjectName   string     `json:"project_name"`
	Subdomain     string     `json:"subdomain"`
	Status        string     `json:"status"`
	ContainerID   string     `json:"container_id"`
	Port          int        `json:"port"`
	DeploymentURL string     `json:"deployment_url"`
	ImageName     string     `json:"image_name"`
	Framework     string     `json:"framework"`
	CPULimit      int        `json:"cpu_limit"`
	MemoryLimit   int        `json:"memory_limit"`
	Logs          string     `json:"logs"`
	ErrorMessage  string     `json:"error_message"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// Settled reports whether the pipeline has finished, successfully or not.
func (d Deployment) Settled() bool {
	switch d.Status {
	case "pending", "building", "deploying":
		return false
	}
	return true
}

// Health is the container state of a deployment.
type Health struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// LogEntry is a persisted pipeline log line.
type LogEntry struct {
	ID           int64     `json:"id"`
	DeploymentID string    `json:"deployment_id"`
	Stream       string    `json:"stream"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// Deploy submits sources for a new deployment. The returned record is pending.
func (c *Client) Deploy(ctx context.Context, token string, input DeployInput) (Deployment, error) {
	var deployment Deployment
	if err := c.do(ctx, http.MethodPost, "/deployments", input, token, &deployment); err != nil {
		return Deployment{}, err
	}
	return deployment, nil
}

// GetDeployment fetches a deployment record.
func (c *Client) GetDeployment(ctx context.Context, token, deploymentID string) (Deployment, error) {
	var deployment Deployment
	if err := c.do(ctx, http.MethodGet, deploymentPath(deploymentID, ""), nil, token, &deployment); err != nil {
		return Deployment{}, err
	}
	return deployment, nil
}

// ListDeployments fetches recent deployments for a project.
func (c *Client) ListDeployments(ctx context.Context, token, projectID string, limit int) ([]Deployment, error) {
	query := ""
	if limit > 0 {
		query = fmt.Sprintf("?limit=%d", limit)
	}
	path := fmt.Sprintf("/projects/%s/deployments%s", url.PathEscape(projectID), query)
	var payload struct {
		Deployments []Deployment `json:"deployments"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, token, &payload); err != nil {
		return nil, err
	}
	return payload.Deployments, nil
}

// StopDeployment stops a running deployment.
func (c *Client) StopDeployment(ctx context.Context, token, deploymentID string) (Deployment, error) {
	var deployment Deployment
	err := c.do(ctx, http.MethodPost, deploymentPath(deploymentID, "/stop"), nil, token, &deployment)
	return deployment, err
}

// RestartDeployment restarts a running or stopped deployment.
func (c *Client) RestartDeployment(ctx context.Context, token, deploymentID string) (Deployment, error) {
	var deployment Deployment
	err := c.do(ctx, http.MethodPost, deploymentPath(deploymentID, "/restart"), nil, token, &deployment)
	return deployment, err
}

// DeleteDeployment removes a deployment and associated runtime state.
func (c *Client) DeleteDeployment(ctx context.Context, token, deploymentID string) (Deployment, error) {
	var deployment Deployment
	err := c.do(ctx, http.MethodDelete, deploymentPath(deploymentID, ""), nil, token, &deployment)
	return deployment, err
}

// DeploymentHealth returns container status and uptime.
func (c *Client) DeploymentHealth(ctx context.Context, token, deploymentID string) (Health, error) {
	var health Health
	err := c.do(ctx, http.MethodGet, deploymentPath(deploymentID, "/health"), nil, token, &health)
	return health, err
}

// BuildLogs returns persisted pipeline log lines.
func (c *Client) BuildLogs(ctx context.Context, token, deploymentID string, tail int) ([]LogEntry, error) {
	var payload struct {
		Entries []LogEntry `json:"entries"`
	}
	path := deploymentPath(deploymentID, "/logs") + logQuery("build", tail)
	if err := c.do(ctx, http.MethodGet, path, nil, token, &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

// RuntimeLogs returns the last tail lines of container output.
func (c *Client) RuntimeLogs(ctx context.Context, token, deploymentID string, tail int) ([]string, error) {
	var payload struct {
		Lines []string `json:"lines"`
	}
	path := deploymentPath(deploymentID, "/logs") + logQuery("runtime", tail)
	if err := c.do(ctx, http.MethodGet, path, nil, token, &payload); err != nil {
		return nil, err
	}
	return payload.Lines, nil
}

// WaitForDeployment polls until the deployment settles or ctx ends.
func (c *Client) WaitForDeployment(ctx context.Context, token, deploymentID string, interval time.Duration) (Deployment, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		deployment, err := c.GetDeployment(ctx, token, deploymentID)
		if err != nil {
			return Deployment{}, err
		}
		if deployment.Settled() {
			return deployment, nil
		}
		select {
		case <-ctx.Done():
			return deployment, ctx.Err()
		case <-ticker.C:
		}
	}
}

func deploymentPath(id, suffix string) string {
	return "/deployments/" + url.PathEscape(id) + suffix
}

func logQuery(source string, tail int) string {
	values := url.Values{"source": []string{source}}
	if tail > 0 {
		values.Set("tail", strconv.Itoa(tail))
	}
	return "?" + values.Encode()
}
