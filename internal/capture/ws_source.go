package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/park285/chess-vision/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type StateCallback func(State)

// maximum accepted frame size
const wsReadLimit = 16 << 20

// WSSource subscribes to a stream of frames pushed by a camera bridge and
// keeps only the newest one. Binary messages are raw image bytes; text
// messages are JSON {"image": base64, "filename": "..."}.
type WSSource struct {
	url string

	connM sync.Mutex
	conn  *websocket.Conn

	state   State
	stateM  sync.RWMutex
	stateCb StateCallback

	latest  Frame
	latestM sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewWSSource(url string, maxReconnectAttempts int, pingInterval time.Duration) *WSSource {
	if maxReconnectAttempts <= 0 {
		maxReconnectAttempts = 5
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WSSource{
		url:                  url,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         pingInterval,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

func (s *WSSource) OnStateChange(cb StateCallback) {
	s.stateM.Lock()
	s.stateCb = cb
	s.stateM.Unlock()
}

func (s *WSSource) State() State {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

// Connect dials the bridge. A failed dial schedules background reconnects.
func (s *WSSource) Connect(ctx context.Context) error {
	switch s.State() {
	case StateConnected, StateConnecting, StateReconnecting:
		return nil
	}
	if s.isStopping() {
		return errors.New("ws source closed")
	}
	s.setState(StateConnecting)

	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateFailed)
		s.scheduleReconnect()
		return err
	}
	s.attach(conn)
	return nil
}

// Grab returns the newest frame received so far, connecting on first use.
func (s *WSSource) Grab(ctx context.Context) (Frame, error) {
	if st := s.State(); st == StateDisconnected || st == StateFailed {
		if err := s.Connect(ctx); err != nil {
			return Frame{}, err
		}
	}
	s.latestM.RLock()
	defer s.latestM.RUnlock()
	if len(s.latest.Data) == 0 {
		return Frame{}, ErrNoFrame
	}
	return s.latest, nil
}

func (s *WSSource) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(wsReadLimit)
	return conn, nil
}

func (s *WSSource) attach(conn *websocket.Conn) {
	s.connM.Lock()
	s.conn = conn
	s.connM.Unlock()
	s.setState(StateConnected)

	s.wg.Add(2)
	go s.listen(conn)
	go s.pingLoop(conn)
}

func (s *WSSource) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		typ, data, err := conn.Read(s.rootCtx)
		if err != nil {
			if s.isStopping() {
				return
			}
			obslog.L().Warn("ws_source_read_failed", zap.String("url", s.url), zap.Error(err))
			s.dropConn(conn, websocket.StatusGoingAway, "reconnect")
			return
		}
		frame, ok := decodeFrame(typ, data)
		if !ok {
			continue
		}
		s.latestM.Lock()
		s.latest = frame
		s.latestM.Unlock()
	}
}

func decodeFrame(typ websocket.MessageType, data []byte) (Frame, bool) {
	now := time.Now()
	if typ == websocket.MessageBinary {
		if len(data) == 0 {
			return Frame{}, false
		}
		return Frame{Data: data, Filename: "frame.jpg", CapturedAt: now}, true
	}
	var msg struct {
		Image    string `json:"image"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Image == "" {
		return Frame{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Image)
	if err != nil || len(raw) == 0 {
		return Frame{}, false
	}
	name := msg.Filename
	if name == "" {
		name = "frame.jpg"
	}
	return Frame{Data: raw, Filename: name, CapturedAt: now}, true
}

func (s *WSSource) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			if !s.isCurrent(conn) {
				return
			}
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if s.isStopping() {
					return
				}
				s.dropConn(conn, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// dropConn closes conn if it is still the active one and starts reconnecting.
func (s *WSSource) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	s.connM.Lock()
	if s.conn != conn {
		s.connM.Unlock()
		return
	}
	s.conn = nil
	s.connM.Unlock()
	_ = conn.Close(code, reason)
	s.setState(StateDisconnected)
	s.scheduleReconnect()
}

func (s *WSSource) isCurrent(conn *websocket.Conn) bool {
	s.connM.Lock()
	defer s.connM.Unlock()
	return s.conn == conn
}

func (s *WSSource) scheduleReconnect() {
	if s.isStopping() {
		return
	}
	s.setState(StateReconnecting)
	go func() {
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			conn, err := s.dial(s.rootCtx)
			if err != nil {
				continue
			}
			obslog.L().Info("ws_source_reconnected", zap.String("url", s.url), zap.Int("attempt", attempt))
			s.attach(conn)
			return
		}
		s.setState(StateFailed)
	}()
}

func (s *WSSource) setState(state State) {
	s.stateM.Lock()
	s.state = state
	cb := s.stateCb
	s.stateM.Unlock()
	if cb != nil {
		cb(state)
	}
}

func (s *WSSource) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *WSSource) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.connM.Lock()
	conn := s.conn
	s.conn = nil
	s.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	s.setState(StateDisconnected)
	return nil
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
