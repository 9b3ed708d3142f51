package backend

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T, h fasthttp.RequestHandler, opts ...Option) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	opts = append([]Option{WithDialer(func(string) (net.Conn, error) { return ln.Dial() })}, opts...)
	return NewClient("http://backend.test", opts...)
}

func TestAnalyzePositionDecodesReply(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != pathAnalyze || !ctx.IsPost() {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"success":true,"fen":"x","suggestedMove":"e2e4","evaluation":{"materialBalance":2,"whiteToMove":true,"inCheck":false,"moveCount":1},"isGameOver":false,"legalMoves":["e2e4","d2d4"],"extra":1}`)
	})
	got, err := c.AnalyzePosition(context.Background(), "x")
	if err != nil {
		t.Fatalf("AnalyzePosition: %v", err)
	}
	if got.SuggestedMove != "e2e4" || got.Evaluation == nil || got.Evaluation.MaterialBalance != 2 || len(got.LegalMoves) != 2 {
		t.Fatalf("unexpected reply: %+v", got)
	}
	if len(got.Raw) == 0 {
		t.Fatalf("raw body not kept")
	}
}

func TestDetectPositionSendsMultipart(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		fh, err := ctx.FormFile("image")
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		f, err := fh.Open()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "jpegbytes" || fh.Filename != "board.jpg" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		ctx.SetBodyString(`{"success":true,"fen":"8/8/8/8/8/8/8/8 w - - 0 1","confidence":0.91}`)
	})
	got, err := c.DetectPosition(context.Background(), "board.jpg", []byte("jpegbytes"))
	if err != nil {
		t.Fatalf("DetectPosition: %v", err)
	}
	if !got.Success || got.Confidence != 0.91 {
		t.Fatalf("unexpected reply: %+v", got)
	}
}

func TestDetectPositionRejectsEmptyImage(t *testing.T) {
	c := NewClient("")
	if c.BaseURL() != DefaultBaseURL {
		t.Fatalf("default base url: %s", c.BaseURL())
	}
	if _, err := c.DetectPosition(context.Background(), "x.png", nil); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

func TestRetriesOnServerError(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if hits.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString(`{"success":true,"fen":"x"}`)
	})
	if _, err := c.AnalyzePosition(context.Background(), "x"); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"detail":"Invalid FEN notation"}`)
	})
	_, err := c.AnalyzePosition(context.Background(), "bad")
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if serr.Status != 400 || serr.Detail() != "Invalid FEN notation" {
		t.Fatalf("unexpected status error: %+v detail=%q", serr, serr.Detail())
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", hits.Load())
	}
}

func TestContextCancelStopsRetries(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	}, WithRetry(6))
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := c.AnalyzePosition(ctx, "x"); err == nil {
		t.Fatalf("expected error")
	}
	if hits.Load() >= 6 {
		t.Fatalf("retries ignored context: %d attempts", hits.Load())
	}
}

func TestAnalyzeRawForwardsBodyUnchanged(t *testing.T) {
	var got atomic.Value
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		got.Store(string(ctx.PostBody()))
		ctx.SetBodyString(`{"success":true,"fen":"x"}`)
	})
	body := `{"fen":"x","depth":12}`
	if _, err := c.AnalyzeRaw(context.Background(), []byte(body)); err != nil {
		t.Fatalf("AnalyzeRaw: %v", err)
	}
	if got.Load() != body {
		t.Fatalf("body changed in transit: %v", got.Load())
	}
}

func TestAPIKeyHeader(t *testing.T) {
	if APIKeyHeader("  ") != nil {
		t.Fatalf("empty key must not produce a provider")
	}
	var key atomic.Value
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		key.Store(string(ctx.Request.Header.Peek("X-API-Key")))
		ctx.SetBodyString(`{"status":"ok"}`)
	}, WithHeaderProvider(APIKeyHeader("secret")))
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if key.Load() != "secret" {
		t.Fatalf("X-API-Key not sent: %v", key.Load())
	}
}

func TestDetectRetryBudget(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	}, WithRetry(5), WithDetectRetry(1))
	if _, err := c.DetectPosition(context.Background(), "board.jpg", []byte("img")); err == nil {
		t.Fatalf("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("detect retry budget ignored: %d attempts", hits.Load())
	}
}

func TestWithMaxConnsPerHost(t *testing.T) {
	if c := NewClient("", WithMaxConnsPerHost(8)); c.http.MaxConnsPerHost != 8 {
		t.Fatalf("MaxConnsPerHost: want 8 got %d", c.http.MaxConnsPerHost)
	}
}

func TestBackoffDuration(t *testing.T) {
	if backoffDuration(1) != 100*time.Millisecond || backoffDuration(3) != 400*time.Millisecond {
		t.Fatalf("unexpected backoff")
	}
	if backoffDuration(10) != backoffDuration(6) {
		t.Fatalf("backoff not capped")
	}
}
