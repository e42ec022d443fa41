// Package gce is a minimal Compute Engine control-plane client covering the
// instance lifecycle operations this system needs: insert, stop, delete, get
// and list, plus zonal operation polling. Failures keep the control plane's
// own classification via the typed errors in the domain package.
package gce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/avkline/enginevm/internal/domain"
)

// Client talks to the compute API. It is safe for concurrent use.
type Client struct {
	base   string
	tokens TokenSource
	http   *http.Client
	logger *slog.Logger

	// opPollInterval paces zonal operation polling. Tests shrink it.
	opPollInterval time.Duration
}

// NewClient creates a compute client against the given API base. An empty
// base selects the public endpoint.
func NewClient(base string, tokens TokenSource, logger *slog.Logger) *Client {
	if base == "" {
		base = "https://compute.googleapis.com/compute/v1"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil // suppress default logging

	return &Client{
		base:           strings.TrimRight(base, "/"),
		tokens:         tokens,
		http:           retryClient.StandardClient(),
		logger:         logger,
		opPollInterval: 2 * time.Second,
	}
}

// Insert submits an instance create request and blocks until the control
// plane acknowledges it (the zonal operation completes). Acknowledgement
// means the instance exists and is booting, nothing more.
func (c *Client) Insert(ctx context.Context, project, zone string, inst *Instance) error {
	body, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}

	path := fmt.Sprintf("/projects/%s/zones/%s/instances", project, zone)
	data, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return mapAPIError(err, inst.Name)
	}

	return c.waitOperation(ctx, project, zone, data, "insert "+inst.Name)
}

// Delete removes an instance. Deleting an instance that does not exist is
// not an error: teardown must be safe to repeat.
func (c *Client) Delete(ctx context.Context, project, zone, name string) error {
	path := fmt.Sprintf("/projects/%s/zones/%s/instances/%s", project, zone, name)
	data, err := c.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return mapAPIError(err, name)
	}

	return c.waitOperation(ctx, project, zone, data, "delete "+name)
}

// Stop halts an instance without deleting it. Idempotent on absence, same
// as Delete.
func (c *Client) Stop(ctx context.Context, project, zone, name string) error {
	path := fmt.Sprintf("/projects/%s/zones/%s/instances/%s/stop", project, zone, name)
	data, err := c.doRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return mapAPIError(err, name)
	}

	return c.waitOperation(ctx, project, zone, data, "stop "+name)
}

// Get fetches a single instance, or a domain.NotFoundError.
func (c *Client) Get(ctx context.Context, project, zone, name string) (*Instance, error) {
	path := fmt.Sprintf("/projects/%s/zones/%s/instances/%s", project, zone, name)
	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, mapAPIError(err, name)
	}

	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("unmarshal instance: %w", err)
	}
	return &inst, nil
}

// List returns the zone's instances, optionally narrowed by a compute API
// filter expression. Ordering is whatever the control plane returns.
func (c *Client) List(ctx context.Context, project, zone, filter string) ([]Instance, error) {
	path := fmt.Sprintf("/projects/%s/zones/%s/instances", project, zone)
	if filter != "" {
		path += "?filter=" + url.QueryEscape(filter)
	}

	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, mapAPIError(err, "")
	}

	var list instanceList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("unmarshal instance list: %w", err)
	}
	return list.Items, nil
}

// waitOperation polls the zonal operation returned by a mutation until it
// reaches DONE, then surfaces any operation-level error.
func (c *Client) waitOperation(ctx context.Context, project, zone string, opData []byte, label string) error {
	var op operation
	if err := json.Unmarshal(opData, &op); err != nil {
		return fmt.Errorf("unmarshal operation: %w", err)
	}

	path := fmt.Sprintf("/projects/%s/zones/%s/operations/%s", project, zone, op.Name)
	for {
		if op.Status == "DONE" {
			if op.Error != nil && len(op.Error.Errors) > 0 {
				first := op.Error.Errors[0]
				return domain.OperationError{Op: label, Message: first.Code + ": " + first.Message}
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opPollInterval):
		}

		data, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return fmt.Errorf("poll operation %s: %w", op.Name, err)
		}
		if err := json.Unmarshal(data, &op); err != nil {
			return fmt.Errorf("unmarshal operation: %w", err)
		}
	}
}

// --- internal ---

// requestError carries the HTTP status and body of a failed API call so the
// caller can map it onto a typed domain error.
type requestError struct {
	method string
	path   string
	status int
	body   []byte
}

func (e *requestError) Error() string {
	return fmt.Sprintf("compute API %s %s returned %d: %s", e.method, e.path, e.status, strings.TrimSpace(string(e.body)))
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("compute API error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return nil, &requestError{method: method, path: path, status: resp.StatusCode, body: respBody}
	}

	return respBody, nil
}

// mapAPIError converts a failed request into a typed domain error, falling
// back to the raw request error when the failure is unclassified.
func mapAPIError(err error, name string) error {
	reqErr, ok := err.(*requestError)
	if !ok {
		return err
	}

	var parsed apiError
	reason := ""
	if jsonErr := json.Unmarshal(reqErr.body, &parsed); jsonErr == nil && len(parsed.Error.Errors) > 0 {
		reason = parsed.Error.Errors[0].Reason
	}

	switch {
	case reqErr.status == http.StatusConflict || reason == "alreadyExists":
		return domain.AlreadyExistsError{Name: name}
	case reqErr.status == http.StatusNotFound || reason == "notFound":
		return domain.NotFoundError{Name: name}
	case reason == "quotaExceeded" || reason == "QUOTA_EXCEEDED":
		return domain.QuotaExceededError{Reason: parsed.Error.Message}
	case reqErr.status == http.StatusBadRequest:
		return domain.InvalidSpecError{Reason: parsed.Error.Message}
	default:
		return err
	}
}

func isNotFound(err error) bool {
	reqErr, ok := err.(*requestError)
	return ok && reqErr.status == http.StatusNotFound
}
