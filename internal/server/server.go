package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Health tracks the most recent pass so /healthz can report staleness.
type Health struct {
	lastRun atomic.Int64
	lastErr atomic.Value
}

// Record stores the completion time and error of a pass.
func (h *Health) Record(at time.Time, err error) {
	h.lastRun.Store(at.Unix())
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	h.lastErr.Store(msg)
}

type healthResponse struct {
	Status  string `json:"status"`
	LastRun string `json:"last_run,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New builds the router serving /healthz and /metrics.
func New(gatherer prometheus.Gatherer, health *Health, logger zerolog.Logger) http.Handler {
	logger = logger.With().Str("component", "http").Logger()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		resp := healthResponse{Status: "ok"}
		if health != nil {
			if ts := health.lastRun.Load(); ts > 0 {
				resp.LastRun = time.Unix(ts, 0).UTC().Format(time.RFC3339)
			}
			if msg, _ := health.lastErr.Load().(string); msg != "" {
				resp.Status = "degraded"
				resp.Error = msg
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})
	return r
}

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
