// Package jobs is the client of the scheduler service that triggers DCA job
// executions.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/brewit-money/wallet/types"
)

const (
	APIKeyHeader = "X-API-Key"

	defaultTimeout = 15 * time.Second
	maxRetries     = 3
)

var ErrNotFound = errors.New("job not found")

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scheduler responded with status %d: %s", e.Code, e.Body)
}

// Scheduler is the scheduler surface the orchestrator depends on.
type Scheduler interface {
	Details(ctx context.Context) (types.SchedulerDetails, error)
	Schedule(ctx context.Context, req types.ScheduleRequest) (types.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (types.Job, error)
}

type Client struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	logger  *logrus.Logger
}

type Option func(*retryablehttp.Client)

func WithRetryMax(n int) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

func NewClient(baseURL, apiKey string, logger *logrus.Logger, opts ...Option) *Client {
	l := logger.WithField("pkg", "jobs.Client").Logger
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = defaultTimeout
	retryClient.Logger = l
	retryClient.RetryMax = maxRetries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	for _, opt := range opts {
		opt(retryClient)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  retryClient,
		logger:  l,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Errorf("failed to close response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) Details(ctx context.Context) (types.SchedulerDetails, error) {
	var d types.SchedulerDetails
	if err := c.do(ctx, http.MethodGet, "/details", nil, &d); err != nil {
		return types.SchedulerDetails{}, err
	}
	return d, nil
}

func (c *Client) Schedule(ctx context.Context, req types.ScheduleRequest) (types.Job, error) {
	var job types.Job
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &job); err != nil {
		return types.Job{}, err
	}
	c.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"account": req.Data.Account,
	}).Info("job scheduled")
	return job, nil
}

func (c *Client) Cancel(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+id.String(), nil, nil)
}

func (c *Client) Get(ctx context.Context, id uuid.UUID) (types.Job, error) {
	var job types.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String(), nil, &job); err != nil {
		return types.Job{}, err
	}
	return job, nil
}
