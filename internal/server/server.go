package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/server/ratelimit"
	"github.com/jonathan/offer-ingest/internal/types"
)

const shutdownTimeout = 15 * time.Second

// Store is the read side of the canonical offer store.
type Store interface {
	Ping(ctx context.Context) error
	ListOffers(ctx context.Context, filters db.OfferFilters) ([]db.Offer, error)
	GetOfferByKey(ctx context.Context, source types.Source, externalID string) (*db.Offer, error)
	ListHistory(ctx context.Context, source types.Source, externalID string) ([]db.HistoryRecord, error)
}

// Enqueuer puts offer URLs on the ingestion queue.
type Enqueuer interface {
	EnqueueURL(ctx context.Context, url string, source types.Source) error
}

// Archiver moves one offer into history.
type Archiver interface {
	Archive(ctx context.Context, source types.Source, externalID string, reason db.ArchiveReason) error
}

// Canonicalizer maps a raw offer URL to its canonical form.
type Canonicalizer interface {
	Canonicalize(raw string) (string, bool)
}

// Options configures the admin server.
type Options struct {
	Addr string
	// Canonical maps each routed source to its URL rules. Unlisted sources are enqueued as given.
	Canonical map[types.Source]Canonicalizer
	// Limiter is optional; nil disables rate limiting.
	Limiter *ratelimit.Limiter
}

// Server is the admin HTTP API.
type Server struct {
	store    Store
	enqueuer Enqueuer
	archiver Archiver
	opts     Options
	logger   *zap.Logger
}

// New creates an admin server.
func New(store Store, enqueuer Enqueuer, archiver Archiver, opts Options, logger *zap.Logger) *Server {
	return &Server{
		store:    store,
		enqueuer: enqueuer,
		archiver: archiver,
		opts:     opts,
		logger:   logger.Named("admin"),
	}
}

// Handler returns the routed API with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /offers", s.handleListOffers)
	mux.HandleFunc("GET /offers/{source}/{external_id}", s.handleGetOffer)
	mux.HandleFunc("GET /offers/{source}/{external_id}/history", s.handleOfferHistory)
	mux.Handle("POST /offers/{source}/{external_id}/archive", s.withRateLimit(ratelimit.RouteArchive, s.handleArchive))
	mux.Handle("POST /enqueue", s.withRateLimit(ratelimit.RouteEnqueue, s.handleEnqueue))

	return s.withLogging(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin API listening", zap.String("addr", s.opts.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin API shutdown: %w", err)
	}
	if s.opts.Limiter != nil {
		s.opts.Limiter.Stop()
	}
	s.logger.Info("admin API stopped")
	return nil
}

// withRateLimit limits route per client when a limiter is configured.
func (s *Server) withRateLimit(route string, next http.HandlerFunc) http.Handler {
	if s.opts.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := s.opts.Limiter.Allow(clientID(r), route)
		setRateLimitHeaders(w, info)
		if !info.Allowed {
			s.logger.Warn("rate limit exceeded",
				zap.String("route", route),
				zap.String("client", clientID(r)),
				zap.Duration("retry_after", info.RetryAfter))
			if info.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(info.RetryAfter.Seconds())+1))
			}
			s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
				"error":    "rate_limit_exceeded",
				"limit":    info.Limit,
				"reset_at": info.ResetTime.Format(time.RFC3339),
			})
			return
		}
		next(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// clientID uses the remote IP; forwarded headers are not trusted.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// failure maps err to a status and logs server-side failures.
func (s *Server) failure(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.errorResponse(w, status, err.Error())
}
