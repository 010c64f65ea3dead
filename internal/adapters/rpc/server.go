package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	"microloan/go-backend/internal/platform/ratelimiter"
)

const (
	DefaultRPCAddr  = "127.0.0.1:8787"
	shutdownTimeout = 5 * time.Second
)

// Observer receives per-request outcomes and may expose a scrape endpoint.
type Observer interface {
	ObserveRPC(method, status string, known bool)
	Handler() http.Handler
}

type Options struct {
	Logger *slog.Logger
	// ReadLimit applies to every /rpc call, WriteLimit additionally to loan mutations.
	ReadLimit  ratelimiter.Config
	WriteLimit ratelimiter.Config
	Streams    StreamLimit
	Observer   Observer
}

// Server exposes the loan daemon over JSON-RPC on /rpc, an SSE event stream on
// /rpc/stream, /healthz and, with an Observer, /metrics.
type Server struct {
	httpServer   *http.Server
	service      contracts.DaemonService
	initErr      error
	rpcToken     string
	requireRPC   bool
	logger       *slog.Logger
	readLimiter  *ratelimiter.MapLimiter
	writeLimiter *ratelimiter.MapLimiter
	streams      *streamSlots
	idempotency  *idempotencyLedger
	observer     Observer
}

// NewServerWithService resolves the RPC token from the environment. A
// misconfigured token surfaces from Run.
func NewServerWithService(rpcAddr string, svc contracts.DaemonService, opts Options) *Server {
	requireRPC := requiresRPCToken()
	rpcToken, err := resolveRPCToken()
	if err == nil && requireRPC && rpcToken == "" {
		err = errors.New("MICROLOAN_RPC_TOKEN is required unless MICROLOAN_REQUIRE_RPC_TOKEN=false or MICROLOAN_ENV is test/development/local")
	}
	if err != nil {
		return &Server{initErr: err}
	}
	return newServerWithService(rpcAddr, svc, rpcToken, requireRPC, opts)
}

func newServerWithService(rpcAddr string, svc contracts.DaemonService, rpcToken string, requireRPC bool, opts Options) *Server {
	if rpcAddr == "" {
		rpcAddr = DefaultRPCAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		service:      svc,
		rpcToken:     rpcToken,
		requireRPC:   requireRPC,
		logger:       opts.Logger.With("component", "rpc"),
		readLimiter:  ratelimiter.New(opts.ReadLimit),
		writeLimiter: ratelimiter.New(opts.WriteLimit),
		streams:      newStreamSlots(opts.Streams),
		idempotency:  newIdempotencyLedger(),
		observer:     opts.Observer,
	}
	if rpcToken == "" && !requireRPC {
		s.logger.Warn("MICROLOAN_RPC_TOKEN is not set; RPC auth disabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/rpc/stream", s.handleRPCStream)
	if s.observer != nil {
		mux.Handle("/metrics", s.observer.Handler())
	}
	s.httpServer = &http.Server{
		Addr:              rpcAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run starts the daemon service, serves until ctx ends, then shuts the
// listener down before stopping the service.
func (s *Server) Run(ctx context.Context) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.service == nil {
		return errors.New("rpc server has no daemon service")
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := s.service.Start(ctx); err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()
	s.logger.Info("rpc listening", "addr", s.httpServer.Addr)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-served:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serveErr == nil {
		if err := s.httpServer.Shutdown(stopCtx); err != nil {
			return err
		}
		serveErr = <-served
	}
	if err := s.service.Stop(stopCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) { s.handleHealth(w, r) }

func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) { s.handleRPC(w, r) }

func (s *Server) HandleRPCStream(w http.ResponseWriter, r *http.Request) { s.handleRPCStream(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.preflight(w, r, http.MethodGet, false) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// preflight applies CORS, answers OPTIONS, optionally checks the token and
// enforces method. It reports whether the handler should continue.
func (s *Server) preflight(w http.ResponseWriter, r *http.Request, method string, needsAuth bool) bool {
	if !s.applyCORS(w, r) {
		return false
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if needsAuth && !s.authorizeRPC(w, r) {
		return false
	}
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
