package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjeanneret/CamKit/internal/debug"
)

// DefaultRateLimit is the number of intent requests allowed per client IP
// and second when none is configured.
const DefaultRateLimit = 10

// Server wraps the HTTP server and handlers.
type Server struct {
	addr      string
	rateLimit int
	handlers  *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, coordinator Coordinator, rateLimit int) *Server {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	return &Server{
		addr:      addr,
		rateLimit: rateLimit,
		handlers:  NewHandlers(broadcaster, coordinator, staticFS()),
	}
}

// rateLimited caps intent requests per client IP.
func rateLimited(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	h := s.handlers
	c := h.Coordinator

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", h.ServeIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	r.Get("/snapshot", h.HandleSnapshot)
	r.Get("/status/stream", h.HandleStatusStream)
	r.Get("/artifact", h.HandleArtifact)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rateLimited(s.rateLimit, time.Second))

		r.Post("/record/start", h.Intent("start", c.StartRecording))
		r.Post("/record/stop", h.Intent("stop", c.StopRecording))
		r.Post("/record/cancel", h.Intent("cancel", c.CancelRecording))
		r.Post("/camera/switch", h.Intent("switch_camera", c.SwitchCamera))
		r.Post("/torch/switch", h.Intent("switch_torch", c.SwitchTorch))
		r.Post("/navigation/consume", h.Intent("consume_navigation", c.ConsumeNavigation))
		r.Post("/error/dismiss", h.Intent("dismiss_error", c.DismissError))
	})

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
