package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"roundabout-sync/internal/config"
	"roundabout-sync/internal/logger"
	"roundabout-sync/internal/metrics"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusError is a non-2xx answer from the home base.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Retryable reports whether the request may succeed if sent again.
// Client errors (4xx) other than 408 and 429 are fatal.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// IsRetryable classifies err as transient (5xx or transport failure).
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var encErr *encodeError
	return !errors.As(err, &encErr)
}

type encodeError struct{ err error }

func (e *encodeError) Error() string { return "encode request: " + e.err.Error() }
func (e *encodeError) Unwrap() error { return e.err }

type Options struct {
	BaseURL       string
	APIPath       string
	Token         string
	Timeout       time.Duration
	RetryCount    int
	RetryInterval time.Duration
	RetryMaxDelay time.Duration
}

func OptionsFromConfig(cfg config.RemoteConfig) Options {
	return Options{
		BaseURL:       cfg.BaseURL,
		APIPath:       cfg.APIPath,
		Token:         cfg.Token,
		Timeout:       cfg.GetTimeout(),
		RetryCount:    cfg.RetryCount,
		RetryInterval: cfg.GetRetryInterval(),
		RetryMaxDelay: cfg.GetRetryMaxDelay(),
	}
}

// Client talks to the versioned REST API of a remote RDB instance.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	retries    int
	interval   time.Duration
	maxDelay   time.Duration
}

func NewClient(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Timeout > 0 && httpClient.Timeout == 0 {
		httpClient.Timeout = opts.Timeout
	}
	apiPath := "/" + strings.Trim(opts.APIPath, "/")
	if apiPath == "/" {
		apiPath = ""
	}
	return &Client{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/") + apiPath,
		token:      strings.TrimSpace(opts.Token),
		retries:    opts.RetryCount,
		interval:   opts.RetryInterval,
		maxDelay:   opts.RetryMaxDelay,
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = strings.TrimSpace(token)
	return &cp
}

// URL returns the absolute URL of an API path such as "inventory/12/".
func (c *Client) URL(path string) string {
	return c.apiURL + "/" + strings.TrimLeft(path, "/")
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) Decode(v any) error {
	return codec.Unmarshal(r.Body, v)
}

func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	target := c.URL(path)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, target, "", nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, body)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (*Response, error) {
	data, err := codec.Marshal(body)
	if err != nil {
		return nil, &encodeError{err: err}
	}
	return c.do(ctx, method, c.URL(path), "application/json", data)
}

// File is one binary part of a multipart upload.
type File struct {
	Field    string
	Filename string
	Content  []byte
}

// Upload POSTs a multipart form with plain fields and one file.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, file File) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(file.Field, file.Filename)
	if err != nil {
		return nil, &encodeError{err: err}
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, &encodeError{err: err}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, &encodeError{err: err}
		}
	}
	if err := w.Close(); err != nil {
		return nil, &encodeError{err: err}
	}
	return c.do(ctx, http.MethodPost, c.URL(path), w.FormDataContentType(), buf.Bytes())
}

func (c *Client) do(ctx context.Context, method, target, contentType string, body []byte) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			logger.Log.Warn("Retrying remote request",
				zap.String("method", method),
				zap.String("url", target),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.once(ctx, method, target, contentType, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return resp, err
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", c.retries+1, lastErr)
}

func (c *Client) once(ctx context.Context, method, target, contentType string, body []byte) (*Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, &encodeError{err: err}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.MarkRequest(method, 0, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	metrics.MarkRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, err
	}

	logger.Log.Debug("Remote request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	out := &Response{StatusCode: resp.StatusCode, Body: data}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: data}
	}
	return out, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.interval
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.maxDelay > 0 && delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
