// Package pprof exposes the runtime profiling endpoints over a small,
// optional HTTP server. Disabled by default; binding beyond loopback
// requires a token.
package pprof

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	rtsup "rosterbot/internal/runtime/supervisor"
	"rosterbot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
	Token   string
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "pprof"))))
	// Self-heals on listen failures (port still held after a fast restart).
	s.sup.GoRestart("http.serve", s.serveOnce, 500*time.Millisecond, 10*time.Second)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	srv := s.srv
	ln := s.ln
	s.sup = nil
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}

	if srv != nil {
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("pprof stopped")
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:6060"
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		s.log.Error("pprof refused to start: non-loopback addr requires a token",
			logx.String("addr", addr))
		return errors.New("pprof: insecure bind")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withToken(cfg.Token, h) }
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // CPU profiles stream for a while
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("pprof listening", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

func withToken(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Pprof-Token")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
