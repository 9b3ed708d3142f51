package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/park285/chess-vision/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var (
	ErrNoSource = errors.New("no frame source configured")
	ErrNoFrame  = errors.New("no frame available yet")
)

// Frame is one still image handed to the detector.
type Frame struct {
	Data       []byte
	Filename   string
	CapturedAt time.Time
}

// Source produces the most recent frame on demand.
type Source interface {
	Grab(ctx context.Context) (Frame, error)
	Close() error
}

// NewSource picks a frame source from a locator:
//
//	file:/path/to/frame.jpg
//	http(s)://camera.local/snapshot.jpg
//	ws(s)://bridge.local/frames
func NewSource(locator string) (Source, error) {
	loc := strings.TrimSpace(locator)
	lower := strings.ToLower(loc)
	switch {
	case loc == "":
		return nil, ErrNoSource
	case strings.HasPrefix(lower, "file:"):
		return NewFileSource(strings.TrimPrefix(loc[len("file:"):], "//")), nil
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return NewHTTPSource(loc, 0), nil
	case strings.HasPrefix(lower, "ws://"), strings.HasPrefix(lower, "wss://"):
		ws := NewWSSource(loc, 0, 0)
		ws.OnStateChange(func(st State) {
			obslog.L().Info("ws_source_state", zap.String("url", loc), zap.Stringer("state", st))
		})
		return ws, nil
	default:
		return nil, fmt.Errorf("unsupported frame source %q", locator)
	}
}

// FileSource re-reads a file that some other process keeps overwriting.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

func (s *FileSource) Grab(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}
	if len(data) == 0 {
		return Frame{}, ErrNoFrame
	}
	return Frame{Data: data, Filename: filepath.Base(s.path), CapturedAt: time.Now()}, nil
}

func (s *FileSource) Close() error { return nil }

// HTTPSource fetches a still from a camera snapshot endpoint.
type HTTPSource struct {
	url     string
	http    *fasthttp.Client
	timeout time.Duration
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		url:     url,
		http:    &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout, MaxConnsPerHost: 4},
		timeout: timeout,
	}
}

func (s *HTTPSource) Grab(ctx context.Context) (Frame, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(s.url)

	deadline := time.Now().Add(s.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := s.http.DoDeadline(req, resp, deadline); err != nil {
		return Frame{}, fmt.Errorf("fetch frame: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return Frame{}, fmt.Errorf("fetch frame: status=%d", code)
	}
	body := resp.Body()
	if len(body) == 0 {
		return Frame{}, ErrNoFrame
	}
	return Frame{
		Data:       append([]byte(nil), body...),
		Filename:   filenameFor(string(resp.Header.ContentType())),
		CapturedAt: time.Now(),
	}, nil
}

func (s *HTTPSource) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func filenameFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "frame.png"
	case strings.Contains(contentType, "webp"):
		return "frame.webp"
	default:
		return "frame.jpg"
	}
}
