package delphi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "delphi-import/0.1"

// Client is an HTTP client for the AskDelphi editing API. It attaches
// bearer credentials from a CredentialSource, recovers from a single 401
// by forcing one refresh and retrying exactly once, and optionally paces
// consecutive requests through a rate limiter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
	logger     *slog.Logger

	// limiter paces consecutive requests. Configured with burst 1 so the
	// first call of a batch is never delayed. Nil disables pacing.
	limiter *rate.Limiter
}

// NewClient creates an editing API client. httpClient should carry the
// request timeout; nil falls back to http.DefaultClient.
func NewClient(
	baseURL string,
	httpClient *http.Client,
	creds CredentialSource,
	logger *slog.Logger,
	limiter *rate.Limiter,
) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		creds:      creds,
		logger:     logger,
		limiter:    limiter,
	}
}

// PacingLimiter returns a limiter that allows one request immediately and
// then one per interval. A non-positive interval disables pacing.
func PacingLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Every(interval), 1)
}

// Do executes a request against the API. The path is appended to the
// client's base URL; a non-nil body is encoded as JSON. The caller closes
// the response body on success. Non-2xx responses other than the single
// retried 401 are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("delphi: encoding %s %s body: %w", method, path, err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("delphi: request canceled: %w", err)
		}
	}

	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.doOnce(ctx, method, path, payload, cred)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return c.finish(method, path, resp)
	}

	// One forced refresh, one retry. A second 401 is terminal — looping
	// against a misconfigured credential helps nobody.
	drainBody(resp)

	c.logger.Warn("unauthorized response, refreshing credential",
		slog.String("method", method),
		slog.String("path", path),
	)

	cred, err = c.creds.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	resp, err = c.doOnce(ctx, method, path, payload, cred)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		body := drainBody(resp)

		return nil, fmt.Errorf("%w: still unauthorized after refresh: %s", ErrAuth, body)
	}

	return c.finish(method, path, resp)
}

// DoJSON executes a request and decodes the JSON response into out.
// Pass nil out to discard the response body.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("delphi: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(
	ctx context.Context,
	method, path string,
	payload []byte,
	cred Credential,
) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("delphi: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are surfaced immediately, never
		// auto-retried.
		return nil, fmt.Errorf("delphi: %s %s: %w", method, path, err)
	}

	return resp, nil
}

// finish classifies the final response: 2xx passes through, anything else
// becomes an *APIError.
func (c *Client) finish(method, path string, resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	body := drainBody(resp)

	c.logger.Debug("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Body:       body,
		Err:        classifyStatus(resp.StatusCode),
	}
}

// drainBody reads and closes a response body so the connection can be
// reused. Returns the body text for error reporting.
func drainBody(resp *http.Response) string {
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()

	if err != nil {
		return "(failed to read response body)"
	}

	return string(data)
}
