package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"orrery.space/engine"
	"orrery.space/protocol"
)

// Session connects one websocket client to its own simulation worker. The
// reader feeds the worker's inbox, the writer drains its outbox, and the
// worker goroutine owns the simulation.
type Session struct {
	id      uint64
	conn    *websocket.Conn
	worker  *engine.Worker
	limiter *rate.Limiter
	metrics *MetricsCollector
	log     *slog.Logger

	writeTimeout time.Duration
}

// Send queues a message for the session's worker
func (s *Session) Send(ctx context.Context, msg protocol.Message) error {
	return s.worker.Send(ctx, msg)
}

// Run serves the session until the client goes away or ctx is done
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := s.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("worker stopped", "error", err)
		}
	}()

	go func() {
		defer wg.Done()
		s.writeLoop(cancel)
	}()

	go func() {
		defer wg.Done()
		<-ctx.Done()
		// unblocks the reader
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
		s.conn.Close()
	}()

	s.readLoop(ctx)
	cancel()
	wg.Wait()
	s.log.Info("session closed")
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read failed", "error", err)
			}
			return
		}

		if !s.limiter.Allow() {
			s.metrics.RecordRejected("rate_limited")
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			s.metrics.RecordRejected("malformed")
			s.log.Debug("dropping message", "error", err)
			continue
		}

		if err := s.worker.Send(ctx, msg); err != nil {
			return
		}
	}
}

// writeLoop runs until the worker closes its outbox. After a write failure it
// keeps draining so the worker never blocks on a dead client.
func (s *Session) writeLoop(cancel context.CancelFunc) {
	failed := false
	for msg := range s.worker.Outbound() {
		if failed {
			continue
		}
		data, err := protocol.Encode(msg)
		if err != nil {
			s.log.Error("encode outbound", "type", msg.Type(), "error", err)
			continue
		}
		if s.writeTimeout > 0 {
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.log.Debug("write failed", "error", err)
			failed = true
			cancel()
		}
	}
}
