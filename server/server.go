// Package server exposes simulations over websockets. Each connection gets
// its own simulation worker; the server adds origin checks, per-client rate
// limits, metrics, optional TLS and live catalog reloads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"orrery.space/body"
	"orrery.space/config"
	"orrery.space/engine"
	"orrery.space/protocol"
	"orrery.space/scene"
)

type Server struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *MetricsCollector
	gatherer prometheus.Gatherer
	origins  *OriginValidator
	limiter  *IPRateLimiter
	upgrader websocket.Upgrader

	mu       sync.Mutex
	catalog  body.Catalog
	sessions map[uint64]*Session
	reserved int // slots held by connections still upgrading
	nextID   uint64

	httpServer    *http.Server
	httpsServer   *http.Server
	metricsServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sessWG sync.WaitGroup
}

// New creates a server. Metrics are registered with reg.
func New(cfg config.Config, catalog body.Catalog, log *slog.Logger, reg *prometheus.Registry) *Server {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		log:      log,
		metrics:  NewMetricsCollector(reg),
		gatherer: reg,
		origins:  NewOriginValidator(cfg.Server.AllowedOrigins),
		limiter:  PerMinute(cfg.Limits.MessagesPerMinute, cfg.Limits.Burst),
		catalog:  catalog,
		sessions: make(map[uint64]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 16384,
		CheckOrigin:     s.origins.CheckOrigin,
	}
	return s
}

// Handler returns the HTTP routes: /ws, /healthz, optionally /metrics and a
// static file tree at /
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.cfg.Server.MetricsAddr == "" {
		mux.Handle("/metrics", MetricsHandler(s.gatherer))
	}
	if dir := s.cfg.Server.StaticDir; dir != "" {
		mux.Handle("/", http.FileServer(http.Dir(dir)))
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.SessionCount(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.reserveSlot() {
		http.Error(w, "too many sessions", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.releaseSlot()
		// Upgrade already replied to the client
		s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if n := s.cfg.Server.MaxMessageBytes; n > 0 {
		conn.SetReadLimit(n)
	}

	sess, err := s.newSession(conn, clientIP(r))
	if err != nil {
		s.releaseSlot()
		s.log.Error("create session", "error", err)
		conn.Close()
		return
	}
	s.serve(sess, clientIP(r))
}

// reserveSlot claims room for one more session under Limits.MaxSessions.
// The slot turns into a session in serve or is given back by releaseSlot.
func (s *Server) reserveSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit := s.cfg.Limits.MaxSessions; limit > 0 && len(s.sessions)+s.reserved >= limit {
		return false
	}
	s.reserved++
	return true
}

func (s *Server) releaseSlot() {
	s.mu.Lock()
	s.reserved--
	s.mu.Unlock()
}

func (s *Server) newSession(conn *websocket.Conn, ip string) (*Session, error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	catalog := s.catalog
	s.mu.Unlock()

	log := s.log.With("session", id, "remote", ip)
	sim := s.cfg.Simulation
	state, err := engine.NewState(scene.NewGraph(), engine.Options{
		Registry:      sim.RegistryOptions(),
		Camera:        s.cfg.Camera.RigOptions(),
		Catalog:       catalog,
		SpinIncrement: sim.SpinIncrement,
		PathSegments:  sim.PathSegments,
		Preload:       sim.Preload,
		ShowLines:     sim.ShowLines,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", id, err)
	}

	worker := engine.NewWorker(state, engine.WorkerOptions{
		FrameRate:  sim.FrameRate,
		FrameEvery: sim.FrameEvery,
		InboxSize:  s.cfg.Limits.Inbox,
		OutboxSize: s.cfg.Limits.Outbox,
		Observer:   s.metrics,
	}, log)

	return &Session{
		id:           id,
		conn:         conn,
		worker:       worker,
		limiter:      s.limiter.Acquire(ip),
		metrics:      s.metrics,
		log:          log,
		writeTimeout: s.cfg.Server.WriteTimeout.Duration,
	}, nil
}

func (s *Server) serve(sess *Session, ip string) {
	s.mu.Lock()
	s.reserved--
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.sessWG.Add(1)
	s.metrics.SessionOpened()
	sess.log.Info("session opened")

	defer func() {
		s.limiter.Release(ip)
		s.metrics.SessionClosed()
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		s.sessWG.Done()
	}()

	sess.Run(s.ctx)
}

// SessionCount returns the number of connected clients
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Catalog returns the catalog new sessions start from
func (s *Server) Catalog() body.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// SetCatalog replaces the catalog used by new sessions
func (s *Server) SetCatalog(c body.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = c
}

// Broadcast delivers msg to every session. A session whose inbox stays full
// past ctx's deadline misses the message.
func (s *Server) Broadcast(ctx context.Context, msg protocol.Message) int {
	s.mu.Lock()
	targets := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	delivered := 0
	for _, sess := range targets {
		if err := sess.Send(ctx, msg); err != nil {
			sess.log.Warn("broadcast dropped", "type", msg.Type(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

func (s *Server) serveHTTP(srv *http.Server, ln net.Listener, useTLS bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if useTLS {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", "addr", ln.Addr().String(), "error", err)
		}
	}()
}

// Start binds every listener and serves in the background. Bind failures are
// returned; nothing is left running when Start fails.
func (s *Server) Start() error {
	handler := s.Handler()
	var listeners []net.Listener
	fail := func(err error) error {
		for _, ln := range listeners {
			ln.Close()
		}
		return err
	}

	var httpsLn net.Listener
	if s.cfg.TLS.Enabled {
		manager, tlsConfig, err := setupTLS(s.cfg.TLS, s.log)
		if err != nil {
			return err
		}
		if httpsLn, err = s.listen(s.cfg.TLS.Addr); err != nil {
			return err
		}
		listeners = append(listeners, httpsLn)
		s.httpsServer = &http.Server{
			Handler:   handler,
			TLSConfig: tlsConfig,
		}
		// plain HTTP still answers ACME challenges
		handler = manager.HTTPHandler(handler)
	}

	httpLn, err := s.listen(s.cfg.Server.Addr)
	if err != nil {
		return fail(err)
	}
	listeners = append(listeners, httpLn)
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsLn net.Listener
	if addr := s.cfg.Server.MetricsAddr; addr != "" {
		if metricsLn, err = s.listen(addr); err != nil {
			return fail(err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", MetricsHandler(s.gatherer))
		s.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	if s.cfg.Catalog.Watch && s.cfg.Catalog.Path != "" {
		if err := s.watchCatalog(s.cfg.Catalog.Path); err != nil {
			return fail(err)
		}
	}

	s.log.Info("starting HTTP server", "addr", httpLn.Addr().String())
	s.serveHTTP(s.httpServer, httpLn, false)
	if s.httpsServer != nil {
		s.log.Info("starting HTTPS server", "addr", httpsLn.Addr().String())
		s.serveHTTP(s.httpsServer, httpsLn, true)
	}
	if s.metricsServer != nil {
		s.log.Info("starting metrics server", "addr", metricsLn.Addr().String())
		s.serveHTTP(s.metricsServer, metricsLn, false)
	}
	return nil
}

// Shutdown stops accepting connections, closes every session and waits for
// the background goroutines
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range []*http.Server{s.httpServer, s.httpsServer, s.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	// hijacked websocket connections are not covered by http.Server.Shutdown
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.sessWG.Wait()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for sessions: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
