package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"revchain/config"
	"revchain/core"
	"revchain/services/archive"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// EventArchive serves historical event queries beyond the in-memory feed.
type EventArchive interface {
	Query(ctx context.Context, filter archive.Filter) ([]archive.EventRecord, error)
}

// Options configures the HTTP server.
type Options struct {
	Auth      config.AuthConfig
	RateLimit config.RateLimitConfig
	Archive   EventArchive
	Logger    *slog.Logger
}

// Server exposes the ledger over HTTP.
type Server struct {
	ledger  *core.Ledger
	archive EventArchive
	auth    *Authenticator
	limiter *rateLimiter
	logger  *slog.Logger
	router  http.Handler
}

// NewServer builds the router. Direct write routes are mounted only when
// bearer authentication is enabled since they act on the token subject.
func NewServer(ledger *core.Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ledger:  ledger,
		archive: opts.Archive,
		auth:    NewAuthenticator(opts.Auth, logger),
		limiter: newRateLimiter(opts.RateLimit),
		logger:  logger,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the instrumented router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(chimw.Recoverer)
	r.Use(withObservability(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.Middleware)
		}
		api.Use(chimw.RequestSize(maxBodyBytes))

		api.Get("/periods/current", s.handleCurrentPeriod)
		api.Get("/periods/last", s.handleLastPeriod)
		api.Get("/holders/{addr}", s.handleHolder)
		api.Get("/supply", s.handleSupply)
		api.Get("/events", s.handleEvents)
		api.Get("/events/ws", s.handleEventsWS)

		api.Post("/periods/advance", s.handleAdvance)
		api.Post("/redeem/signed", s.handleRedeemSigned)
		api.Post("/withdraw/signed", s.handleWithdrawSigned)
		api.Post("/redeem/bulk", s.handleRedeemBulk)
		api.Post("/withdraw/bulk", s.handleWithdrawBulk)

		if s.auth != nil {
			api.Group(func(direct chi.Router) {
				direct.Use(s.auth.Middleware)
				direct.Post("/deposit", s.handleDeposit)
				direct.Post("/redeem", s.handleRedeem)
				direct.Post("/withdraw", s.handleWithdraw)
				direct.Post("/transfer", s.handleTransfer)
				direct.Post("/value", s.handleReceiveValue)
				direct.Post("/admin/supply-cap", s.handleSetSupplyCap)
			})
		}
	})

	return otelhttp.NewHandler(r, "revchain.rpc")
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("addr", lis.Addr().String()))
		errCh <- srv.Serve(lis)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc: shutdown: %w", err)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.String("requestid", requestIDFrom(r.Context())),
		)
	}
	writeErrorCode(w, status, code, err.Error())
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
