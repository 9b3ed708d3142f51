package relay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/chess-vision/internal/board"
	"github.com/park285/chess-vision/internal/preview"
	"github.com/park285/chess-vision/internal/snapshot"
	"github.com/park285/chess-vision/pkg/visiondto"
	"github.com/valyala/fasthttp"
)

func (s *Server) routeSession(ctx *fasthttp.RequestCtx, method string, rest []string) {
	if len(rest) == 0 || rest[0] == "" {
		s.requireMethod(ctx, method, fasthttp.MethodPost, s.handleCreateSession)
		return
	}
	id := rest[0]
	if len(rest) == 1 {
		switch method {
		case fasthttp.MethodGet:
			s.handleGetSession(ctx, id)
		case fasthttp.MethodDelete:
			s.handleDeleteSession(ctx, id)
		default:
			s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "relay.method_not_allowed", nil, "")
		}
		return
	}
	if len(rest) != 2 {
		s.writeError(ctx, fasthttp.StatusNotFound, "relay.not_found", nil, "")
		return
	}

	type route struct {
		method string
		h      func(*fasthttp.RequestCtx, string)
	}
	routes := map[string]route{
		"edit":        {fasthttp.MethodPost, s.handleEdit},
		"accept":      {fasthttp.MethodPost, s.handleAccept},
		"detection":   {fasthttp.MethodPost, s.handleDetection},
		"select":      {fasthttp.MethodPost, s.handleSelect},
		"navigate":    {fasthttp.MethodPost, s.handleNavigate},
		"live":        {fasthttp.MethodPost, s.handleLive},
		"clear":       {fasthttp.MethodPost, s.handleClear},
		"pgn":         {fasthttp.MethodGet, s.handlePGN},
		"autoplay":    {fasthttp.MethodPost, s.handleAutoplay},
		"capture":     {fasthttp.MethodPost, s.handleCapture},
		"upload":      {fasthttp.MethodPost, s.handleUpload},
		"suggest":     {fasthttp.MethodPost, s.handleSuggest},
		"suggestions": {fasthttp.MethodPost, s.handleSuggestions},
		"save":        {fasthttp.MethodPost, s.handleSaveGame},
		"positions":   {fasthttp.MethodPost, s.handleSavePosition},
		"board.png":   {fasthttp.MethodGet, s.handleBoardPNG},
		"links":       {fasthttp.MethodGet, s.handleLinks},
	}
	r, ok := routes[rest[1]]
	switch {
	case !ok:
		s.writeError(ctx, fasthttp.StatusNotFound, "relay.not_found", nil, "")
	case rest[1] == "capture" && method == fasthttp.MethodGet:
		s.handleCaptureStatus(ctx, id)
	case method != r.method:
		s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "relay.method_not_allowed", nil, "")
	default:
		r.h(ctx, id)
	}
}

func (s *Server) handleCreateSession(ctx *fasthttp.RequestCtx) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.Create(rctx)
	if err != nil {
		s.fail(ctx, "", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, sess)
}

func (s *Server) handleGetSession(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.Get(rctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sess)
}

func (s *Server) handleDeleteSession(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	if err := s.sessions.Delete(rctx, id); err != nil {
		s.fail(ctx, id, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleEdit(ctx *fasthttp.RequestCtx, id string) {
	var req visiondto.EditRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.fail(ctx, id, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()

	var err error
	var out any
	switch {
	case strings.TrimSpace(req.Square) != "":
		piece := ""
		if req.Piece != nil {
			piece = *req.Piece
		}
		out, err = s.sessions.EditSquare(rctx, id, req.Square, piece)
	case strings.TrimSpace(req.FEN) != "":
		out, err = s.sessions.ApplyEdit(rctx, id, req.FEN)
	default:
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.fen_required", nil, "")
		return
	}
	s.respond(ctx, id, out, err)
}

func (s *Server) handleAccept(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.AcceptDetected(rctx, id)
	s.respond(ctx, id, sess, err)
}

func (s *Server) handleDetection(ctx *fasthttp.RequestCtx, id string) {
	var req visiondto.DetectionRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.fail(ctx, id, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	if strings.TrimSpace(req.FEN) == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "relay.fen_required", nil, "")
		return
	}
	confidence := 0.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	res, err := s.sessions.IngestDetection(rctx, id, req.FEN, confidence, req.SuggestedMove)
	s.respond(ctx, id, res, err)
}

func (s *Server) handleSelect(ctx *fasthttp.RequestCtx, id string) {
	var req visiondto.SelectRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.fail(ctx, id, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	if req.Index == nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "session.index_out_of_range", nil, "index is required")
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.SelectMove(rctx, id, *req.Index)
	s.respond(ctx, id, sess, err)
}

func (s *Server) handleNavigate(ctx *fasthttp.RequestCtx, id string) {
	var req visiondto.NavigateRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.fail(ctx, id, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.Navigate(rctx, id, strings.ToLower(strings.TrimSpace(req.To)))
	s.respond(ctx, id, sess, err)
}

func (s *Server) handleLive(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.ToggleLive(rctx, id)
	s.respond(ctx, id, sess, err)
}

func (s *Server) handleClear(ctx *fasthttp.RequestCtx, id string) {
	var req visiondto.ClearRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.fail(ctx, id, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.Clear(rctx, id, req.Confirm)
	s.respond(ctx, id, sess, err)
}

func (s *Server) handlePGN(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	pgn, filename, err := s.sessions.PGN(rctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/x-chess-pgn")
	ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.SetBodyString(pgn)
}

func (s *Server) handleAutoplay(ctx *fasthttp.RequestCtx, id string) {
	var req visiondto.AutoplayRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.fail(ctx, id, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	delay := time.Duration(req.DelayMs) * time.Millisecond

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "start", "play":
		d, err := s.sessions.StartAutoplay(rctx, id, delay)
		if err != nil {
			s.fail(ctx, id, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, visiondto.AutoplayResponse{Running: true, DelayMs: int(d.Milliseconds())})
	case "stop", "pause":
		if _, err := s.sessions.Get(rctx, id); err != nil {
			s.fail(ctx, id, err)
			return
		}
		s.sessions.StopAutoplay(id)
		writeJSON(ctx, fasthttp.StatusOK, visiondto.AutoplayResponse{Running: false})
	case "delay":
		d, running := s.sessions.SetAutoplayDelay(id, delay)
		writeJSON(ctx, fasthttp.StatusOK, visiondto.AutoplayResponse{Running: running, DelayMs: int(d.Milliseconds())})
	default:
		s.writeError(ctx, fasthttp.StatusBadRequest, "session.invalid_action", map[string]any{"Action": req.Action}, "")
	}
}

func (s *Server) handleCapture(ctx *fasthttp.RequestCtx, id string) {
	var req visiondto.CaptureRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.fail(ctx, id, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "start":
		if err := s.sessions.StartCapture(rctx, id); err != nil {
			s.fail(ctx, id, err)
			return
		}
	case "stop":
		s.sessions.StopCapture(id)
	default:
		s.writeError(ctx, fasthttp.StatusBadRequest, "session.invalid_action", map[string]any{"Action": req.Action}, "")
		return
	}
	s.handleCaptureStatus(ctx, id)
}

func (s *Server) handleCaptureStatus(ctx *fasthttp.RequestCtx, id string) {
	st, _ := s.sessions.CaptureStats(id)
	writeJSON(ctx, fasthttp.StatusOK, visiondto.CaptureResponse{
		Running:       st.Running,
		Captures:      st.Captures,
		Errors:        st.Errors,
		LastCaptureMs: st.LastCaptureMs,
	})
}

func (s *Server) handleUpload(ctx *fasthttp.RequestCtx, id string) {
	filename, image, ok := s.readImage(ctx)
	if !ok {
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	res, err := s.sessions.Upload(rctx, id, filename, image)
	s.respond(ctx, id, res, err)
}

func (s *Server) handleSuggest(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	reply, err := s.sessions.Suggest(rctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	if len(reply.Raw) > 0 {
		writeRawJSON(ctx, fasthttp.StatusOK, reply.Raw)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, reply)
}

func (s *Server) handleSuggestions(ctx *fasthttp.RequestCtx, id string) {
	var req visiondto.SuggestionsRequest
	if err := decodeJSON(ctx, &req); err != nil {
		s.fail(ctx, id, fmt.Errorf("%w: %v", errBadJSON, err))
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.SetShowSuggestions(rctx, id, req.Enabled)
	s.respond(ctx, id, sess, err)
}

func (s *Server) handleSaveGame(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	snap, err := s.sessions.SaveGame(rctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, snap)
}

func (s *Server) handleSavePosition(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	snap, err := s.sessions.SavePosition(rctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, snap)
}

// handleBoardPNG accepts ?square=e4 to highlight, ?flip=1 and ?size=N.
func (s *Server) handleBoardPNG(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	sess, err := s.sessions.Get(rctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	g, err := board.Decode(sess.CurrentFEN)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}

	args := ctx.QueryArgs()
	opts := preview.Options{Flip: args.GetBool("flip")}
	if n, err := strconv.Atoi(string(args.Peek("size"))); err == nil {
		opts.SquareSize = n
	}
	if raw := string(args.Peek("square")); raw != "" {
		sq, err := board.ParseSquare(raw)
		if err != nil {
			s.writeError(ctx, fasthttp.StatusBadRequest, "session.invalid_edit", nil, err.Error())
			return
		}
		opts.Highlight = &sq
	}

	img, err := s.renderer.RenderPNG(rctx, g, opts)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("image/png")
	ctx.SetBody(img)
}

func (s *Server) handleLinks(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	links, err := s.sessions.Links(rctx, id)
	s.respond(ctx, id, links, err)
}

func (s *Server) routeSnapshot(ctx *fasthttp.RequestCtx, method string, rest []string) {
	if method != fasthttp.MethodGet {
		s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "relay.method_not_allowed", nil, "")
		return
	}
	if s.snapshots == nil {
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, "session.snapshots_disabled", nil, "")
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()

	switch {
	case len(rest) == 0 || rest[0] == "":
		kind, err := snapshot.ParseKind(string(ctx.QueryArgs().Peek("kind")))
		if err != nil {
			s.fail(ctx, "", err)
			return
		}
		limit := snapshot.DefaultListLimit
		if n, err := ctx.QueryArgs().GetUint("limit"); err == nil && n > 0 {
			limit = n
		}
		items, err := s.snapshots.List(rctx, kind, limit)
		if err != nil {
			s.fail(ctx, "", err)
			return
		}
		if items == nil {
			items = []*snapshot.Snapshot{}
		}
		writeJSON(ctx, fasthttp.StatusOK, visiondto.ListResponse[*snapshot.Snapshot]{Items: items, Count: len(items)})
	case len(rest) == 1:
		snap, err := s.snapshots.Get(rctx, rest[0])
		if err != nil {
			s.fail(ctx, rest[0], err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, snap)
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "relay.not_found", nil, "")
	}
}

func (s *Server) respond(ctx *fasthttp.RequestCtx, id string, v any, err error) {
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, v)
}
