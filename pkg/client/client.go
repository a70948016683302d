// Package client is a small Go SDK for the hustle HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fastygo/hustle/domain"
)

// Client talks to a hustle server.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Session is the result of every sign-in flavour.
type Session struct {
	User             *domain.User    `json:"user,omitempty"`
	Session          *domain.Session `json:"session"`
	Token            string          `json:"token"`
	ExpiresAt        time.Time       `json:"expires_at"`
	NeedsCollegeInfo bool            `json:"needs_college_info"`
	IdentityID       string          `json:"identity_id"`
}

// Task is a task together with the caller's roles on it.
type Task struct {
	domain.Task
	Roles domain.Roles `json:"roles"`
}

// NewTask is the body of PostTask.
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Amount      int64      `json:"amount"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// SignUp is the body of SignUp.
type SignUp struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	College    string `json:"college"`
	Department string `json:"department,omitempty"`
	Year       string `json:"year,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
}

// New returns a client for baseURL.
func New(baseURL, token string) *Client {
	return &Client{BaseURL: baseURL, BearerToken: token, Timeout: 30 * time.Second}
}

// SignUp registers a password account and stores the returned token.
func (c *Client) SignUp(ctx context.Context, in SignUp) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/signup", in, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// SignIn exchanges credentials for a token and stores it.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "auth/signin", body, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// SignOut ends the current session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "auth/signout", nil, nil)
}

// Me returns the caller's profile.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var resp domain.User
	err := c.do(ctx, http.MethodGet, "profile", nil, &resp)
	return resp, err
}

// ListTasks returns tasks of the caller's college.
func (c *Client) ListTasks(ctx context.Context, search, sort string) ([]Task, error) {
	q := url.Values{}
	if search != "" {
		q.Set("q", search)
	}
	if sort != "" {
		q.Set("sort", sort)
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MyTasks returns tasks the caller posted or accepted.
func (c *Client) MyTasks(ctx context.Context) (domain.Owned, error) {
	var resp domain.Owned
	err := c.do(ctx, http.MethodGet, "me/tasks", nil, &resp)
	return resp, err
}

// PostTask creates an open task.
func (c *Client) PostTask(ctx context.Context, in NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Accept claims an open task.
func (c *Client) Accept(ctx context.Context, id string) (Task, error) {
	return c.taskAction(ctx, id, "accept", nil)
}

// Complete marks an accepted task done.
func (c *Client) Complete(ctx context.Context, id string) (Task, error) {
	return c.taskAction(ctx, id, "complete", nil)
}

// Pay confirms payment. Empty workerID and zero amount default to the
// accepted worker and the task amount.
func (c *Client) Pay(ctx context.Context, id, workerID string, amount int64) (Task, error) {
	var body interface{}
	if workerID != "" || amount != 0 {
		body = map[string]interface{}{"worker_id": workerID, "amount": amount}
	}
	return c.taskAction(ctx, id, "payment", body)
}

// Contact returns the other party's contact details.
func (c *Client) Contact(ctx context.Context, id string) (domain.Contact, error) {
	var resp domain.Contact
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id)+"/contact", nil, &resp)
	return resp, err
}

// Rate submits a review of userID.
func (c *Client) Rate(ctx context.Context, userID, taskID string, stars int, text string) error {
	body := map[string]interface{}{"task_id": taskID, "stars": stars, "text": text}
	return c.do(ctx, http.MethodPost, "users/"+url.PathEscape(userID)+"/ratings", body, nil)
}

// Colleges lists the known colleges.
func (c *Client) Colleges(ctx context.Context) ([]string, error) {
	var resp []string
	err := c.do(ctx, http.MethodGet, "colleges", nil, &resp)
	return resp, err
}

func (c *Client) taskAction(ctx context.Context, id, action string, body interface{}) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/%s", url.PathEscape(id), action)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/api/v1/" + strings.TrimLeft(endpoint, "/")

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
		if decodeErr == nil {
			apiErr.Code = env.Code
			var msg string
			if json.Unmarshal(env.Error, &msg) == nil {
				apiErr.Message = msg
			}
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
