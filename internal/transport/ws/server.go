package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"heroranker.app/internal/protocol"
	"heroranker.app/internal/sim/world"
	"heroranker.app/internal/sim/world/feature/actions"
	"heroranker.app/internal/sim/world/logic/ids"
)

type Config struct {
	// ActsPerSecond and ActBurst bound ACT frames per connection.
	ActsPerSecond float64
	ActBurst      int

	// SubmitTimeout bounds how long one act waits for its tick.
	SubmitTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{ActsPerSecond: 10, ActBurst: 20, SubmitTimeout: 10 * time.Second}
}

type Server struct {
	world *world.World
	log   logrus.FieldLogger
	cfg   Config

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, cfg Config, logger logrus.FieldLogger) *Server {
	if cfg.ActsPerSecond <= 0 {
		cfg.ActsPerSecond = DefaultConfig().ActsPerSecond
	}
	if cfg.ActBurst <= 0 {
		cfg.ActBurst = DefaultConfig().ActBurst
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultConfig().SubmitTimeout
	}
	return &Server{
		world: w,
		log:   logger,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, ok := s.handshake(conn)
		if !ok {
			return
		}
		log := s.log.WithField("session", sessionID)
		log.Info("client connected")
		defer log.Info("client disconnected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 32)
		go s.writeLoop(ctx, cancel, conn, out)

		frames, unsubscribe := s.world.Subscribe()
		defer unsubscribe()
		go s.stateLoop(ctx, frames, out)

		limiter := rate.NewLimiter(rate.Limit(s.cfg.ActsPerSecond), s.cfg.ActBurst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				enqueue(ctx, out, protocol.NewError(protocol.ErrProtoBadRequest, "malformed frame"))
				continue
			}
			if base.Type != protocol.TypeAct {
				enqueue(ctx, out, protocol.NewError(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type))
				continue
			}
			var act protocol.ActMsg
			_ = json.Unmarshal(msg, &act)
			if !limiter.Allow() {
				enqueue(ctx, out, actResult(act.ReqID, actions.Result{Code: protocol.ErrRateLimit, Message: "too many actions"}))
				continue
			}
			if err := protocol.ValidateAct(msg); err != nil {
				enqueue(ctx, out, actResult(act.ReqID, actions.Result{Code: protocol.ErrProtoBadRequest, Message: err.Error()}))
				continue
			}
			var a actions.Action
			if err := json.Unmarshal(act.Action, &a); err != nil {
				enqueue(ctx, out, actResult(act.ReqID, actions.Result{Code: protocol.ErrProtoBadRequest, Message: err.Error()}))
				continue
			}
			go s.submit(ctx, log, out, act.ReqID, a)
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}
	if err := protocol.ValidateHello(msg); err != nil {
		closeWith(conn, "expected HELLO")
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", false
	}
	if hello.PlayerID != "" && hello.PlayerID != s.world.PlayerID() {
		closeWith(conn, "unknown player")
		return "", false
	}

	sessionID = ids.NewSessionID()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		PlayerID:        s.world.PlayerID(),
		Tick:            s.world.CurrentTick(),
		TickDurationMs:  s.world.Tuning().TickDurationMs,
		Catalogs:        s.world.Catalogs().Digests(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	return sessionID, true
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				cancel()
				return
			}
		}
	}
}

// stateLoop forwards tick frames. A slow client skips frames rather than stalling results.
func (s *Server) stateLoop(ctx context.Context, frames <-chan world.Frame, out chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-frames:
			b, err := json.Marshal(stateMsg(f))
			if err != nil {
				continue
			}
			select {
			case out <- b:
			default:
			}
		}
	}
}

func (s *Server) submit(ctx context.Context, log logrus.FieldLogger, out chan<- []byte, reqID string, a actions.Action) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()
	res, err := s.world.Submit(sctx, a)
	switch {
	case errors.Is(err, world.ErrStopped):
		res = actions.Result{Code: protocol.ErrStale, Message: "world stopped"}
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).WithField("kind", a.Kind).Warn("submit failed")
		res = actions.Result{Code: protocol.ErrInternal, Message: err.Error()}
	}
	enqueue(ctx, out, actResult(reqID, res))
}

func stateMsg(f world.Frame) protocol.StateMsg {
	return protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            f.Tick,
		State:           f.State,
		Caps:            f.Report.Caps,
		Produced:        f.Report.Produced,
		Completed:       f.Report.Completed,
	}
}

func actResult(reqID string, res actions.Result) protocol.ActResultMsg {
	return protocol.ActResultMsg{
		Type:            protocol.TypeActResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		OK:              res.OK,
		Code:            res.Code,
		Message:         res.Message,
		BuildingID:      res.BuildingID,
		HeroID:          res.HeroID,
	}
}

func enqueue(ctx context.Context, out chan<- []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	case <-ctx.Done():
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
