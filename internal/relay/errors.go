package relay

import (
	"errors"

	"github.com/park285/chess-vision/internal/backend"
	"github.com/park285/chess-vision/internal/board"
	"github.com/park285/chess-vision/internal/capture"
	"github.com/park285/chess-vision/internal/history"
	"github.com/park285/chess-vision/internal/obslog"
	"github.com/park285/chess-vision/internal/session"
	"github.com/park285/chess-vision/internal/snapshot"
	"github.com/park285/chess-vision/pkg/visiondto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var errBadJSON = errors.New("invalid json body")

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, key string, data any, details string) {
	writeJSON(ctx, status, visiondto.ErrorResponse{Error: s.msgs.Text(key, data), Details: details})
}

// fail maps a service error onto a status and a catalog message.
func (s *Server) fail(ctx *fasthttp.RequestCtx, id string, err error) {
	var (
		se *backend.StatusError
		de *board.DecodeError
	)
	switch {
	case errors.Is(err, errBadJSON):
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.invalid_json", nil, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		s.writeError(ctx, fasthttp.StatusNotFound, "session.not_found", map[string]any{"ID": id}, "")
	case errors.Is(err, snapshot.ErrNotFound):
		s.writeError(ctx, fasthttp.StatusNotFound, "snapshot.not_found", map[string]any{"ID": id}, "")
	case errors.Is(err, session.ErrInvalidEdit), errors.As(err, &de):
		s.writeError(ctx, fasthttp.StatusBadRequest, "session.invalid_edit", nil, err.Error())
	case errors.Is(err, session.ErrConfirmationRequired):
		s.writeError(ctx, fasthttp.StatusBadRequest, "session.confirm_clear", nil, "")
	case errors.Is(err, history.ErrIndexOutOfRange), errors.Is(err, history.ErrEmpty):
		s.writeError(ctx, fasthttp.StatusBadRequest, "session.index_out_of_range", nil, err.Error())
	case errors.Is(err, history.ErrUnknownTarget):
		s.writeError(ctx, fasthttp.StatusBadRequest, "session.invalid_navigation", nil, err.Error())
	case errors.Is(err, snapshot.ErrInvalidKind):
		s.writeError(ctx, fasthttp.StatusBadRequest, "snapshot.invalid_kind", nil, err.Error())
	case errors.Is(err, session.ErrNothingDetected):
		s.writeError(ctx, fasthttp.StatusConflict, "session.nothing_detected", nil, "")
	case errors.Is(err, session.ErrNothingToPlay):
		s.writeError(ctx, fasthttp.StatusConflict, "session.nothing_to_play", nil, "")
	case errors.Is(err, session.ErrCaptureUnavailable), errors.Is(err, capture.ErrNoSource):
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, "session.capture_unavailable", nil, "")
	case errors.Is(err, session.ErrNoSnapshotStore):
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, "session.snapshots_disabled", nil, "")
	case errors.As(err, &se):
		s.writeError(ctx, fasthttp.StatusBadGateway, "relay.analyze_failed", nil, se.Detail())
	default:
		obslog.L().Error("request_failed", zap.String("session_id", id), zap.ByteString("path", ctx.Path()), zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "internal.error", nil, err.Error())
	}
}

// backendDetails is the "details" field for a failed relay call.
func backendDetails(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) {
		return se.Detail()
	}
	return err.Error()
}
