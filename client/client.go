// Package client talks to the weekplan HTTP API. *Client satisfies
// planner.Remote.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"weekplan/domain"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorPayload = 4 * 1024
)

// StatusError is returned for non-2xx responses other than 400 and 404.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("api: %d %s", e.Code, e.Message)
}

// Client wraps http.Client with helpers for JSON requests.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a new Client.
func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	var rd io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorPayload))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(payload))
	if err := sonic.Unmarshal(payload, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest:
		return &domain.ValidationError{Field: "request", Reason: msg}
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

// Me returns the id the server associates with the bearer token.
func (c *Client) Me(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &resp, nil); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) TasksForWeek(ctx context.Context, startDate, endDate string) ([]domain.Task, error) {
	q := url.Values{"startDate": {startDate}, "endDate": {endDate}}
	tasks := []domain.Task{}
	if err := c.do(ctx, http.MethodGet, "/api/tasks?"+q.Encode(), nil, &tasks, nil); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask makes a single attempt. The idempotency key lets the server
// drop a duplicate when the request is replayed by a proxy.
func (c *Client) CreateTask(ctx context.Context, t domain.NewTask) (domain.Task, error) {
	header := http.Header{}
	header.Set("Idempotency-Key", uuid.NewString())

	var out domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", t, &out, header)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, id int64, p domain.TaskPatch) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+strconv.FormatInt(id, 10), p, &out, nil)
	return out, err
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

func (c *Client) Note(ctx context.Context, weekID string) (*domain.Note, error) {
	var out *domain.Note
	err := c.do(ctx, http.MethodGet, "/api/notes/"+url.PathEscape(weekID), nil, &out, nil)
	return out, err
}

func (c *Client) UpsertNote(ctx context.Context, weekID, content string) (domain.Note, error) {
	var out domain.Note
	body := struct {
		Content string `json:"content"`
	}{content}
	err := c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(weekID), body, &out, nil)
	return out, err
}

func (c *Client) Summary(ctx context.Context, weekID string) (*domain.WeeklySummary, error) {
	var out *domain.WeeklySummary
	err := c.do(ctx, http.MethodGet, "/api/summaries/"+url.PathEscape(weekID), nil, &out, nil)
	return out, err
}

func (c *Client) UpsertSummary(ctx context.Context, weekID string, p domain.SummaryPatch) (domain.WeeklySummary, error) {
	var out domain.WeeklySummary
	err := c.do(ctx, http.MethodPatch, "/api/summaries/"+url.PathEscape(weekID), p, &out, nil)
	return out, err
}

func (c *Client) WeekSettings(ctx context.Context, weekID string) (*domain.WeekSettings, error) {
	var out *domain.WeekSettings
	err := c.do(ctx, http.MethodGet, "/api/week-settings/"+url.PathEscape(weekID), nil, &out, nil)
	return out, err
}

func (c *Client) UpdateLayout(ctx context.Context, weekID string, p domain.LayoutPatch) (domain.WeekSettings, error) {
	var out domain.WeekSettings
	err := c.do(ctx, http.MethodPatch, "/api/week-settings/"+url.PathEscape(weekID)+"/layout", p, &out, nil)
	return out, err
}

func (c *Client) UpdateCustomContent(ctx context.Context, weekID string, p domain.CustomContentPatch) (domain.WeekSettings, error) {
	var out domain.WeekSettings
	err := c.do(ctx, http.MethodPatch, "/api/week-settings/"+url.PathEscape(weekID)+"/custom-content", p, &out, nil)
	return out, err
}

// UploadCustomImage sends the image base64 encoded and returns its URL.
func (c *Client) UploadCustomImage(ctx context.Context, weekID string, data []byte, contentType string) (string, error) {
	body := struct {
		ImageBase64 string `json:"imageBase64"`
		MimeType    string `json:"mimeType"`
	}{base64.StdEncoding.EncodeToString(data), contentType}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/week-settings/"+url.PathEscape(weekID)+"/image", body, &out, nil); err != nil {
		return "", err
	}
	return out.URL, nil
}
