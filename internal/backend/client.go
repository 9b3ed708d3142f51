package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000"

	pathAnalyze    = "/api/analyze-position"
	pathDetect     = "/api/detect-chess-position"
	pathHealth     = "/health"
	pathEngineInfo = "/api/engine-info"
)

var ErrEmptyImage = errors.New("empty image")

// HeaderProvider injects per-request headers (auth, tracing).
type HeaderProvider func() map[string]string

// Client talks to the vision/analysis backend. Both routes share one origin
// and one retry policy.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
	detectRetryMax int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// APIKeyHeader sends key as X-API-Key. An empty key sends nothing.
func APIKeyHeader(key string) HeaderProvider {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return func() map[string]string { return map[string]string{"X-API-Key": key} }
}

// WithRetry sets the attempt budget for JSON calls.
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDetectRetry sets the attempt budget for image uploads, which are
// heavier and retried less.
func WithDetectRetry(max int) Option {
	return func(c *Client) { c.detectRetryMax = max }
}

// WithDialer swaps the transport dialer, used by tests with an in-memory
// listener.
func WithDialer(d fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = d }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 15 * time.Second,
		retryMax:       3,
		detectRetryMax: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) AnalyzePosition(ctx context.Context, fen string) (*AnalyzeReply, error) {
	payload, err := json.Marshal(AnalyzeRequest{FEN: fen})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.AnalyzeRaw(ctx, payload)
}

// AnalyzeRaw posts an already encoded analyze request unchanged, so fields
// this client does not model still reach the backend.
func (c *Client) AnalyzeRaw(ctx context.Context, body []byte) (*AnalyzeReply, error) {
	raw, err := c.do(ctx, fasthttp.MethodPost, pathAnalyze, "application/json", body, c.retryMax)
	if err != nil {
		return nil, err
	}
	var out AnalyzeReply
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

// DetectPosition uploads one image as the multipart field "image".
func (c *Client) DetectPosition(ctx context.Context, filename string, image []byte) (*DetectReply, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	body, contentType, err := multipartImage(filename, image)
	if err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, fasthttp.MethodPost, pathDetect, contentType, body, c.detectRetryMax)
	if err != nil {
		return nil, err
	}
	var out DetectReply
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*HealthReply, error) {
	raw, err := c.do(ctx, fasthttp.MethodGet, pathHealth, "", nil, 1)
	if err != nil {
		return nil, err
	}
	var out HealthReply
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

func (c *Client) EngineInfo(ctx context.Context) (*EngineInfo, error) {
	raw, err := c.do(ctx, fasthttp.MethodGet, pathEngineInfo, "", nil, 1)
	if err != nil {
		return nil, err
	}
	var out EngineInfo
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, attempts int) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if body != nil {
		req.SetBody(body)
	}

	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return nil, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			serr := &StatusError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !shouldRetryStatus(status) {
				return nil, serr
			}
			lastErr = serr
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}
		return append([]byte(nil), resp.Body()...), nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func multipartImage(filename string, image []byte) ([]byte, string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		name = "frame.jpg"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, strings.ReplaceAll(name, `"`, "")))
	h.Set("Content-Type", imageContentType(name))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("build multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func imageContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
