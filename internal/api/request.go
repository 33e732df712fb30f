package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rickgao/engine-bridge/internal/model"
	"github.com/rickgao/engine-bridge/internal/version"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// isRetryable reports whether a failed GET should be retried.
func isRetryable(err error) bool {
	var e *model.Error
	if !errors.As(err, &e) || e.Kind != model.KindHTTP {
		return false
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// transportError wraps a failure that produced no HTTP status.
func transportError(method, path string, err error) *model.Error {
	return &model.Error{
		Kind:    model.KindHTTP,
		Message: fmt.Sprintf("%s %s: %v", method, path, err),
		Err:     err,
	}
}

// doRequest performs one HTTP request. in, when non-nil, is sent as JSON.
func (c *Client) doRequest(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, transportError(method, path, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportError(method, path, fmt.Errorf("rate limit: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, transportError(method, path, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.creds.Apply(req.Header); err != nil {
		return nil, transportError(method, path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(method, path, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &model.Error{
			Kind:       model.KindHTTP,
			Message:    fmt.Sprintf("%s %s: %s", method, path, http.StatusText(resp.StatusCode)),
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	return data, nil
}

// doWithRetry performs a GET with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, transportError(http.MethodGet, path, ctx.Err())
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func decode(method, path string, data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return transportError(method, path, fmt.Errorf("unmarshal response: %w", err))
	}
	return nil
}

// get performs a GET request, retrying when enabled.
func (c *Client) get(ctx context.Context, path string, out any) error {
	data, err := c.doWithRetry(ctx, path)
	if err != nil {
		return err
	}
	return decode(http.MethodGet, path, data, out)
}

// send performs a non-idempotent request. It is never retried.
func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	data, err := c.doRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	return decode(method, path, data, out)
}
