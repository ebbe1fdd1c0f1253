// Package permitlinesdk is a minimal client for the Permitline HTTP API.
package permitlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one Permitline server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Project mirrors the API project model.
type Project struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	CustomerName     string         `json:"customer_name"`
	ProductType      string         `json:"product_type"`
	Status           string         `json:"status"`
	AnalysisProgress int            `json:"analysis_progress"`
	AnalysisStage    string         `json:"analysis_stage"`
	CommunityURL     string         `json:"community_url"`
	CommunityName    string         `json:"community_name"`
	Files            []UploadedFile `json:"files"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

// UploadedFile describes one recorded CSV.
type UploadedFile struct {
	Filename   string   `json:"filename"`
	SizeBytes  int64    `json:"size_bytes"`
	RowCount   int      `json:"row_count"`
	Columns    []string `json:"columns"`
	UploadedAt string   `json:"uploaded_at"`
}

// Configuration is the generated artifact. Nested entities are kept as
// raw JSON so SDK consumers can decode the parts they care about.
type Configuration struct {
	RecordTypes []json.RawMessage `json:"record_types"`
	Departments []json.RawMessage `json:"departments"`
	UserRoles   []json.RawMessage `json:"user_roles"`
	GeneratedAt string            `json:"generated_at"`
	Summary     string            `json:"summary"`
}

// AnalysisStatus is the poll response.
type AnalysisStatus struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage"`
}

// Event is one audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, customerName, productType, communityURL string) (Project, error) {
	body := map[string]any{
		"name":          name,
		"customer_name": customerName,
		"product_type":  productType,
		"community_url": communityURL,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(id, ""), nil, &resp)
	return resp, err
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp, err
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath(id, ""), nil, nil)
}

// UploadCSV uploads one CSV file to a project.
func (c *Client) UploadCSV(ctx context.Context, projectID, filename string, data io.Reader) ([]UploadedFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/"+c.projectPath(projectID, "files"), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var out struct {
		Files []UploadedFile `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// StartAnalysis triggers configuration generation.
func (c *Client) StartAnalysis(ctx context.Context, projectID string) (AnalysisStatus, error) {
	var resp AnalysisStatus
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "analyze"), nil, &resp)
	return resp, err
}

// AnalysisStatus polls the analysis state.
func (c *Client) AnalysisStatus(ctx context.Context, projectID string) (AnalysisStatus, error) {
	var resp AnalysisStatus
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "analysis"), nil, &resp)
	return resp, err
}

// WaitForAnalysis polls until the analysis reaches a terminal state.
func (c *Client) WaitForAnalysis(ctx context.Context, projectID string, interval time.Duration) (AnalysisStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		status, err := c.AnalysisStatus(ctx, projectID)
		if err != nil {
			return status, err
		}
		if status.Status == "configured" || status.Status == "error" {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Configuration fetches the generated configuration.
func (c *Client) Configuration(ctx context.Context, projectID string) (Configuration, error) {
	var resp Configuration
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "configuration"), nil, &resp)
	return resp, err
}

// UpdateRecordType shallow-merges fields into a record type.
func (c *Client) UpdateRecordType(ctx context.Context, projectID, recordTypeID string, fields map[string]any) (json.RawMessage, error) {
	var resp json.RawMessage
	endpoint := c.projectPath(projectID, "record-types/"+url.PathEscape(recordTypeID))
	err := c.do(ctx, http.MethodPut, endpoint, fields, &resp)
	return resp, err
}

// Events returns recent project events.
func (c *Client) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	endpoint := c.projectPath(projectID, "events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	base := "v0/projects/" + url.PathEscape(projectID)
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
