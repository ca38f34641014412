package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/taskloom/taskloom/internal/comment"
	"github.com/taskloom/taskloom/internal/identity"
	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/internal/template"
)

// apiClient is a thin JSON client for the taskloom server. Every request
// carries the acting user in the identity header.
type apiClient struct {
	baseURL string
	userID  string
	http    *http.Client
}

func newClientFromEnv() (*apiClient, error) {
	base := os.Getenv("TASKLOOM_SERVER_URL")
	if base == "" {
		base = "http://localhost:3200"
	}
	user := os.Getenv("TASKLOOM_USER")
	if user == "" {
		return nil, fmt.Errorf("TASKLOOM_USER is required")
	}
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		userID:  user,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// apiError is the error body the server renders for failed requests.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(identity.Header, c.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

type taskEnvelope struct {
	Task *task.Task `json:"task"`
}

type taskDetailsEnvelope struct {
	Task *task.Details `json:"task"`
}

type taskListEnvelope struct {
	Tasks []*task.Task `json:"tasks"`
	Total int          `json:"total"`
}

type createTaskRequest struct {
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Priority       string     `json:"priority,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty"`
	ParentID       string     `json:"parentId,omitempty"`
	AssigneeID     string     `json:"assigneeId,omitempty"`
}

func (c *apiClient) CreateTask(ctx context.Context, req createTaskRequest) (*task.Task, error) {
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) ListTasks(ctx context.Context, status, assignee, parent string, limit, offset int) ([]*task.Task, int, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if assignee != "" {
		q.Set("assignee", assignee)
	}
	if parent != "" {
		q.Set("parent", parent)
	}
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var resp taskListEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks?"+q.Encode(), nil, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Tasks, resp.Total, nil
}

func (c *apiClient) ListBoard(ctx context.Context, status string) ([]*task.Task, error) {
	var resp taskListEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks/status/"+url.PathEscape(status), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *apiClient) GetTask(ctx context.Context, id string) (*task.Details, error) {
	var resp taskDetailsEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

type updateTaskRequest struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	ClearDueDate   bool       `json:"clearDueDate,omitempty"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty"`
	ActualHours    *float64   `json:"actualHours,omitempty"`
	Archived       *bool      `json:"archived,omitempty"`
}

func (c *apiClient) UpdateTask(ctx context.Context, id string, req updateTaskRequest) (*task.Task, error) {
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), req, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) SetStatus(ctx context.Context, id, status string) (*task.Task, error) {
	var resp taskEnvelope
	body := struct {
		Status string `json:"status"`
	}{Status: status}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id)+"/status", body, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) SetPriority(ctx context.Context, id, priority string) (*task.Task, error) {
	var resp taskEnvelope
	body := struct {
		Priority string `json:"priority"`
	}{Priority: priority}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id)+"/priority", body, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) SetAssignee(ctx context.Context, id, assigneeID string) (*task.Task, error) {
	var resp taskEnvelope
	body := struct {
		AssigneeID string `json:"assigneeId"`
	}{AssigneeID: assigneeID}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id)+"/assignee", body, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) StartTracking(ctx context.Context, id string) (*task.Task, error) {
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/tracking/start", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) StopTracking(ctx context.Context, id string) (*task.Task, error) {
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/tracking/stop", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) AttachSubtask(ctx context.Context, id, parentID string) (*task.Task, error) {
	var resp taskEnvelope
	body := struct {
		ParentID string `json:"parentId"`
	}{ParentID: parentID}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id)+"/parent", body, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) DetachSubtask(ctx context.Context, id string) (*task.Task, error) {
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id)+"/parent", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) ListSubtasks(ctx context.Context, id string) ([]*task.Task, error) {
	var resp taskListEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id)+"/subtasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *apiClient) SearchTasks(ctx context.Context, query string) ([]*task.Task, error) {
	q := url.Values{}
	q.Set("q", query)
	var resp taskListEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

type commentEnvelope struct {
	Comment *comment.Comment `json:"comment"`
}

type commentListEnvelope struct {
	Comments []*comment.Comment `json:"comments"`
}

func (c *apiClient) AddComment(ctx context.Context, taskID, body, parentID string) (*comment.Comment, error) {
	var resp commentEnvelope
	req := struct {
		ParentID string `json:"parentId,omitempty"`
		Body     string `json:"body"`
	}{ParentID: parentID, Body: body}
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/comments", req, &resp); err != nil {
		return nil, err
	}
	return resp.Comment, nil
}

func (c *apiClient) ListComments(ctx context.Context, taskID string) ([]*comment.Comment, error) {
	var resp commentListEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID)+"/comments", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

type templateEnvelope struct {
	Template *template.TaskTemplate `json:"template"`
}

type templateListEnvelope struct {
	Templates []*template.TaskTemplate `json:"templates"`
}

func (c *apiClient) SaveTemplate(ctx context.Context, taskID, name string) (*template.TaskTemplate, error) {
	var resp templateEnvelope
	req := struct {
		Name string `json:"name,omitempty"`
	}{Name: name}
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/template", req, &resp); err != nil {
		return nil, err
	}
	return resp.Template, nil
}

func (c *apiClient) ListTemplates(ctx context.Context) ([]*template.TaskTemplate, error) {
	var resp templateListEnvelope
	if err := c.do(ctx, http.MethodGet, "/templates", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Templates, nil
}

func (c *apiClient) ApplyTemplate(ctx context.Context, templateID string) (*task.Task, error) {
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodPost, "/templates/"+url.PathEscape(templateID)+"/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *apiClient) DeleteTemplate(ctx context.Context, templateID string) error {
	return c.do(ctx, http.MethodDelete, "/templates/"+url.PathEscape(templateID), nil, nil)
}

type notificationListEnvelope struct {
	Notifications []*notification.Notification `json:"notifications"`
}

func (c *apiClient) ListNotifications(ctx context.Context, unreadOnly bool) ([]*notification.Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	var resp notificationListEnvelope
	if err := c.do(ctx, http.MethodGet, "/notifications?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}

func (c *apiClient) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *apiClient) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/notifications/read_all", nil, nil)
}
