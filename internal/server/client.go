// Package server implements the client side of the task-queue API: acquiring
// observation tasks and jobs, submitting results and errors, and pushing
// discovered schemas and datasource registrations.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guzun-corp/tsight-agent/internal/domain"
)

// ErrNoTask is returned by the acquire calls when the queue is empty.
// An empty queue is an idle condition, not a failure.
var ErrNoTask = errors.New("no tasks available")

type acquireRequest struct {
	IsHighPriorityQueue bool `json:"is_high_priority_queue"`
}

type submitRecordsRequest struct {
	Records             []domain.Record `json:"records"`
	IsHighPriorityQueue bool            `json:"is_high_priority_queue"`
}

type submitRowsRequest struct {
	Records []domain.Row `json:"records"`
}

type submitErrorRequest struct {
	Error               string `json:"error"`
	IsHighPriorityQueue bool   `json:"is_high_priority_queue"`
}

type submitSchemasRequest struct {
	Schemas []domain.TableSchema `json:"schemas"`
}

type upsertDatasourceRequest struct {
	DatasourceType string `json:"datasource_type"`
}

// Client talks to the server's queue API with bearer authentication.
type Client struct {
	apiKey    string
	serverURL string
	http      *http.Client
}

// NewClient creates a queue API client for the given server.
func NewClient(apiKey, serverURL string) *Client {
	return &Client{
		apiKey:    apiKey,
		serverURL: strings.TrimRight(serverURL, "/"),
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

// AcquireTask pops the next observation task from the chosen queue.
// Returns ErrNoTask when the queue is empty.
func (c *Client) AcquireTask(ctx context.Context, highPriority bool) (*domain.Task, error) {
	var task domain.Task
	err := c.post(ctx, "/tasks/acquire", acquireRequest{IsHighPriorityQueue: highPriority}, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// AcquireJob pops the next ad-hoc job from the job queue.
// Returns ErrNoTask when the queue is empty.
func (c *Client) AcquireJob(ctx context.Context) (*domain.Task, error) {
	var task domain.Task
	if err := c.post(ctx, "/jobs/acquire", nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SubmitRecords reports observation results for a task.
func (c *Client) SubmitRecords(ctx context.Context, taskID string, records []domain.Record, highPriority bool) error {
	return c.post(ctx, "/tasks/"+taskID+"/submit", submitRecordsRequest{
		Records:             records,
		IsHighPriorityQueue: highPriority,
	}, nil)
}

// SubmitTaskError reports an execution failure for a task.
func (c *Client) SubmitTaskError(ctx context.Context, taskID, message string, highPriority bool) error {
	return c.post(ctx, "/tasks/"+taskID+"/submit", submitErrorRequest{
		Error:               message,
		IsHighPriorityQueue: highPriority,
	}, nil)
}

// SubmitJobRecords reports scrubbed job results.
func (c *Client) SubmitJobRecords(ctx context.Context, jobID string, rows []domain.Row) error {
	return c.post(ctx, "/jobs/"+jobID+"/submit", submitRowsRequest{Records: rows}, nil)
}

// SubmitJobError reports an execution failure for a job.
func (c *Client) SubmitJobError(ctx context.Context, jobID, message string) error {
	return c.post(ctx, "/jobs/"+jobID+"/submit", submitErrorRequest{Error: message}, nil)
}

// SubmitSchemas pushes discovered table schemas for a datasource.
func (c *Client) SubmitSchemas(ctx context.Context, datasourceName string, schemas []domain.TableSchema) error {
	return c.post(ctx, "/datasource/"+datasourceName+"/discovery", submitSchemasRequest{Schemas: schemas}, nil)
}

// UpsertDatasource registers or updates a datasource on the server.
func (c *Client) UpsertDatasource(ctx context.Context, datasourceName, datasourceType string) error {
	return c.post(ctx, "/datasource/"+datasourceName+"/add", upsertDatasourceRequest{
		DatasourceType: datasourceType,
	}, nil)
}

// post sends a JSON request and decodes the response into out when non-nil.
// 404 maps to ErrNoTask; any other non-2xx status is an error carrying the
// status code.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request for %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoTask
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request %s failed: status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}
