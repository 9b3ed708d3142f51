package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/park285/chess-vision/internal/backend"
	"github.com/park285/chess-vision/internal/msgcat"
	"github.com/park285/chess-vision/internal/obslog"
	"github.com/park285/chess-vision/internal/preview"
	"github.com/park285/chess-vision/internal/session"
	"github.com/park285/chess-vision/internal/snapshot"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Backend is what the relay forwards to.
type Backend interface {
	AnalyzeRaw(ctx context.Context, body []byte) (*backend.AnalyzeReply, error)
	DetectPosition(ctx context.Context, filename string, image []byte) (*backend.DetectReply, error)
	Health(ctx context.Context) (*backend.HealthReply, error)
}

type Config struct {
	MaxUploadBytes int
	RequestTimeout time.Duration
}

type Server struct {
	backend   Backend
	sessions  *session.Service
	snapshots snapshot.Repository
	renderer  *preview.Renderer
	msgs      *msgcat.Catalog
	cfg       Config
	srv       *fasthttp.Server
}

// New builds a relay. snapshots may be nil, which disables the snapshot
// routes.
func New(be Backend, sessions *session.Service, snapshots snapshot.Repository, renderer *preview.Renderer, msgs *msgcat.Catalog, cfg Config) (*Server, error) {
	if be == nil {
		return nil, errors.New("nil backend")
	}
	if sessions == nil {
		return nil, errors.New("nil session service")
	}
	if renderer == nil {
		renderer = preview.NewRenderer()
	}
	if msgs == nil {
		msgs = msgcat.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		backend:   be,
		sessions:  sessions,
		snapshots: snapshots,
		renderer:  renderer,
		msgs:      msgs,
		cfg:       cfg,
	}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "chess-vision",
		ReadTimeout:        cfg.RequestTimeout,
		WriteTimeout:       cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxUploadBytes + 1<<20,
	}
	return s, nil
}

func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("relay_listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

// Handler routes requests. Panics are logged and answered with 500.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				obslog.L().Error("handler_panic", zap.Any("panic", r), zap.ByteString("path", ctx.Path()))
				s.writeError(ctx, fasthttp.StatusInternalServerError, "internal.error", nil, "")
			}
			obslog.L().Debug("http_request",
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("path", ctx.Path()),
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("elapsed", time.Since(start)),
			)
		}()

		setCORS(ctx)
		if ctx.IsOptions() {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		s.route(ctx)
	}
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := strings.Trim(string(ctx.Path()), "/")
	parts := strings.Split(path, "/")
	method := string(ctx.Method())

	switch {
	case path == "health":
		s.requireMethod(ctx, method, fasthttp.MethodGet, s.handleHealth)
	case path == "api/analyze-position":
		s.requireMethod(ctx, method, fasthttp.MethodPost, s.handleAnalyze)
	case path == "api/detect-chess-position":
		s.requireMethod(ctx, method, fasthttp.MethodPost, s.handleDetect)
	case len(parts) >= 2 && parts[0] == "api" && parts[1] == "sessions":
		s.routeSession(ctx, method, parts[2:])
	case len(parts) >= 2 && parts[0] == "api" && parts[1] == "snapshots":
		s.routeSnapshot(ctx, method, parts[2:])
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "relay.not_found", nil, "")
	}
}

func (s *Server) requireMethod(ctx *fasthttp.RequestCtx, got, want string, h fasthttp.RequestHandler) {
	if got != want {
		s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "relay.method_not_allowed", nil, "")
		return
	}
	h(ctx)
}

// requestContext bounds backend and store calls of one request.
func (s *Server) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

func setCORS(ctx *fasthttp.RequestCtx) {
	h := &ctx.Response.Header
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		obslog.L().Error("response_marshal_failed", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	writeRawJSON(ctx, status, body)
}

func writeRawJSON(ctx *fasthttp.RequestCtx, status int, body []byte) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

// decodeJSON accepts an empty body as the zero value.
func decodeJSON(ctx *fasthttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}
