package relay

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/park285/chess-vision/internal/obslog"
	"github.com/park285/chess-vision/pkg/visiondto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()

	resp := visiondto.HealthResponse{Status: "ok"}
	reply, err := s.backend.Health(rctx)
	switch {
	case err != nil:
		resp.Status = "degraded"
		resp.Backend = map[string]string{"status": "unreachable", "error": backendDetails(err)}
	case len(reply.Raw) > 0:
		resp.Backend = reply.Raw
	default:
		resp.Backend = reply
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleAnalyze(ctx *fasthttp.RequestCtx) {
	var req visiondto.AnalyzeRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.invalid_json", nil, err.Error())
		return
	}
	fen := strings.TrimSpace(req.FEN)
	if fen == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.fen_required", nil, "")
		return
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	// forward the client body as sent; only "fen" is checked here
	body := append([]byte(nil), ctx.PostBody()...)
	reply, err := s.backend.AnalyzeRaw(rctx, body)
	if err != nil {
		obslog.L().Warn("analyze_relay_failed", zap.String("fen", fen), zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "relay.analyze_failed", nil, backendDetails(err))
		return
	}
	if len(reply.Raw) > 0 {
		writeRawJSON(ctx, fasthttp.StatusOK, reply.Raw)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, reply)
}

func (s *Server) handleDetect(ctx *fasthttp.RequestCtx) {
	filename, image, ok := s.readImage(ctx)
	if !ok {
		return
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	reply, err := s.backend.DetectPosition(rctx, filename, image)
	if err != nil {
		obslog.L().Warn("detect_relay_failed", zap.String("filename", filename), zap.Int("bytes", len(image)), zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "relay.detect_failed", nil, backendDetails(err))
		return
	}
	if len(reply.Raw) > 0 {
		writeRawJSON(ctx, fasthttp.StatusOK, reply.Raw)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, reply)
}

// readImage pulls the "image" multipart field. On failure it has already
// written the response.
func (s *Server) readImage(ctx *fasthttp.RequestCtx) (string, []byte, bool) {
	fh, err := ctx.FormFile("image")
	if err != nil {
		if !errors.Is(err, fasthttp.ErrMissingFile) {
			obslog.L().Debug("multipart_read_failed", zap.Error(err))
		}
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.image_required", nil, "")
		return "", nil, false
	}
	if fh.Size > int64(s.cfg.MaxUploadBytes) {
		s.writeError(ctx, fasthttp.StatusRequestEntityTooLarge, "relay.image_too_large", map[string]any{"Limit": s.cfg.MaxUploadBytes}, "")
		return "", nil, false
	}
	f, err := fh.Open()
	if err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.image_required", nil, err.Error())
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(s.cfg.MaxUploadBytes)+1))
	if err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.image_required", nil, fmt.Sprintf("read image: %v", err))
		return "", nil, false
	}
	if len(data) == 0 {
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.image_required", nil, "")
		return "", nil, false
	}
	name := fh.Filename
	if strings.TrimSpace(name) == "" {
		name = "frame.jpg"
	}
	return name, data, true
}
