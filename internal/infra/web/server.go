package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain/ports/repository"
	"telegram-study-planner/internal/usecase"
)

// Server exposes the REST facade: plan submission and status for headless
// clients, plus a small session-guarded admin surface.
type Server struct {
	planUC usecase.PlanUseCase
	poller *usecase.Poller
	jobs   repository.PlanJobRepository
	auth   *AuthManager
	apiKey string
	log    *zerolog.Logger
}

func NewServer(
	planUC usecase.PlanUseCase,
	poller *usecase.Poller,
	jobs repository.PlanJobRepository,
	cfg config.WebConfig,
	dev bool,
	logger *zerolog.Logger,
) *Server {
	compLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		planUC: planUC,
		poller: poller,
		jobs:   jobs,
		auth:   NewAuthManager(cfg.AdminSessionSecret, !dev, cfg.AdminSessionTTL),
		apiKey: cfg.AdminAPIKey,
		log:    &compLog,
	}
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(traceID, requestLog(s.log), recoverer(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/plans", s.submitHandler())
		r.Get("/plans/{jobID}", s.statusHandler())
		r.Post("/plans/{jobID}/cancel", s.cancelHandler())

		r.Post("/admin/login", s.loginHandler())
		r.Post("/admin/logout", s.logoutHandler())
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Get("/admin/jobs", s.adminJobsHandler())
		})
	})
	return r
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Int("port", port).Msg("web server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
