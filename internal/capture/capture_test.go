package capture

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/chess-vision/internal/obslog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"nhooyr.io/websocket"
)

func TestPollerNeverOverlaps(t *testing.T) {
	var inFlight, maxInFlight, calls atomic.Int32
	p := NewPoller("test", 5*time.Millisecond, time.Second, func(ctx context.Context) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	p.Stop()

	if maxInFlight.Load() != 1 {
		t.Fatalf("captures overlapped: max in flight %d", maxInFlight.Load())
	}
	if calls.Load() < 2 {
		t.Fatalf("expected several captures, got %d", calls.Load())
	}
	if p.Running() {
		t.Fatalf("still running after Stop")
	}
	if p.Stats().Captures != uint64(calls.Load()) {
		t.Fatalf("stats mismatch: %+v calls=%d", p.Stats(), calls.Load())
	}
}

func TestPollerCountsErrorsAndAppliesTimeout(t *testing.T) {
	p := NewPoller("timeout", 5*time.Millisecond, 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	p.Stop()
	if p.Stats().Errors == 0 {
		t.Fatalf("expected timed out captures to count as errors")
	}
}

func TestPollerStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller("parent", time.Hour, 0, nil)
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	deadline := time.Now().Add(time.Second)
	for p.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Running() {
		t.Fatalf("poller ignored parent cancellation")
	}
	p.Stop()
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := NewSource("file:" + path)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	f, err := src.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if string(f.Data) != "png" || f.Filename != "latest.png" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestNewSourceDispatch(t *testing.T) {
	if _, err := NewSource(""); !errors.Is(err, ErrNoSource) {
		t.Fatalf("empty locator: %v", err)
	}
	if _, err := NewSource("ftp://x"); err == nil {
		t.Fatalf("expected unsupported error")
	}
	if s, _ := NewSource("https://cam/snap.jpg"); s == nil {
		t.Fatalf("http source")
	} else if _, ok := s.(*HTTPSource); !ok {
		t.Fatalf("want HTTPSource, got %T", s)
	}
	s, _ := NewSource("ws://bridge/frames")
	if _, ok := s.(*WSSource); !ok {
		t.Fatalf("want WSSource, got %T", s)
	}
	_ = s.Close()
}

func TestNewSourceLogsWSState(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := obslog.L()
	obslog.Set(zap.New(core))
	defer obslog.Set(prev)

	s, err := NewSource("ws://bridge/frames")
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	ws := s.(*WSSource)
	defer ws.Close()
	ws.setState(StateReconnecting)

	entries := logs.FilterMessage("ws_source_state").All()
	if len(entries) == 0 {
		t.Fatalf("expected ws_source_state log")
	}
	if got := entries[len(entries)-1].ContextMap()["state"]; got != "reconnecting" {
		t.Fatalf("state field: want reconnecting, got %v", got)
	}
}

func TestHTTPSourceGrab(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	go func() {
		_ = fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
			ctx.SetContentType("image/png")
			ctx.SetBodyString("frame-bytes")
		})
	}()
	src := NewHTTPSource("http://camera.test/snap", time.Second)
	src.http.Dial = func(string) (net.Conn, error) { return ln.Dial() }
	f, err := src.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if string(f.Data) != "frame-bytes" || f.Filename != "frame.png" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestWSSourceKeepsLatestFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		_ = c.Write(ctx, websocket.MessageBinary, []byte("first"))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"image":"c2Vjb25k","filename":"b.png"}`))
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := NewWSSource("ws"+strings.TrimPrefix(srv.URL, "http"), 1, time.Hour)
	defer src.Close()
	if err := src.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, err := src.Grab(context.Background())
		if err == nil && string(f.Data) == "second" {
			if f.Filename != "b.png" {
				t.Fatalf("filename: %s", f.Filename)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("latest frame never arrived")
}
