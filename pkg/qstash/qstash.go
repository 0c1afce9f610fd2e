// Package qstash submits message-processing jobs to the HTTP task queue.
// The worker on the receiving end runs one orchestration turn per job.
package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	URL               string        `split_words:"true" required:"true"`
	Token             string        `split_words:"true" required:"true"`
	CurrentSigningKey string        `split_words:"true" required:"true"`
	NextSigningKey    string        `split_words:"true" required:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

// ProcessMessageJob is the payload handed to the task runner.
type ProcessMessageJob struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

type publishResponse struct {
	MessageID string `json:"messageId"`
}

// TaskState is the queue-side lifecycle of a published job.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskSuccess TaskState = "success"
	TaskFailure TaskState = "failure"
)

// TaskStatus is the status-check result for one published job.
type TaskStatus struct {
	MessageID string    `json:"messageId"`
	State     TaskState `json:"state"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Publish enqueues one job and returns the queue's message id. Delivery is
// at-least-once; the job carries its own correlation id for reconciliation.
func (c *Client) Publish(ctx context.Context, job ProcessMessageJob) (string, error) {
	if strings.TrimSpace(job.ConversationID) == "" {
		return "", errors.New("conversation id is required")
	}
	if strings.TrimSpace(job.Message) == "" {
		return "", errors.New("message is required")
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish job: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read publish response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("publish status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed publishResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	return parsed.MessageID, nil
}

// Status checks one published job. Unknown states from the queue are
// reported as pending.
func (c *Client) Status(ctx context.Context, messageID string) (TaskStatus, error) {
	id := strings.TrimSpace(messageID)
	if id == "" {
		return TaskStatus{}, errors.New("message id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(id), nil)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("check status: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TaskStatus{}, fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return TaskStatus{}, fmt.Errorf("status status=%d body=%s", resp.StatusCode, string(raw))
	}

	var status TaskStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return TaskStatus{}, fmt.Errorf("decode status response: %w", err)
	}
	switch status.State {
	case TaskPending, TaskSuccess, TaskFailure:
	default:
		status.State = TaskPending
	}
	if status.MessageID == "" {
		status.MessageID = id
	}
	return status, nil
}
