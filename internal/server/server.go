package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/healthspend/apiserver/config"
	"github.com/healthspend/apiserver/internal/auth"
	"github.com/healthspend/apiserver/internal/db"
	"github.com/healthspend/apiserver/internal/docstore"
	"github.com/healthspend/apiserver/internal/handlers"
	"github.com/healthspend/apiserver/internal/llm"
	"github.com/healthspend/apiserver/internal/metrics"
	"github.com/healthspend/apiserver/internal/mq"
	"github.com/healthspend/apiserver/internal/services"
	"github.com/healthspend/apiserver/internal/storage"
	"github.com/healthspend/apiserver/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 15 * time.Second
)

// Server wraps the HTTP server, router and the clients it owns.
type Server struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	docs       docstore.Database
	events     *mq.MQ
	archive    *storage.ReportArchive
}

// New connects every dependency named by cfg and builds the router of
// cfg.Service.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Service != config.ServiceHeart && cfg.Service != config.ServiceSpend {
		return nil, fmt.Errorf("unknown service %q", cfg.Service)
	}

	model, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, err
	}

	docs, err := db.OpenDocStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	s := &Server{cfg: cfg, docs: docs}

	if s.events, err = mq.Open(ctx, cfg.MQ); err != nil {
		s.close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}
	if s.archive, err = storage.Open(ctx, cfg.Storage); err != nil {
		s.close()
		return nil, fmt.Errorf("open report storage: %w", err)
	}

	s.router = s.routes(model)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(model llm.Completer) *chi.Mux {
	authService := services.NewAuthService(
		store.NewUserRepository(s.docs.Collection(db.UsersCollection)),
		auth.NewTokenManager(s.cfg.JWTSecret, s.cfg.TokenTTL),
	)
	authMiddleware := handlers.RequireAuth(authService)

	var events services.EventPublisher
	if s.events != nil {
		events = s.events
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		metrics.Middleware(s.cfg.Service),
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz(s.docs))
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		switch s.cfg.Service {
		case config.ServiceHeart:
			var archive services.ReportArchive
			if s.archive != nil {
				archive = s.archive
			}
			predictionService := services.NewPredictionService(
				store.NewPredictionRepository(s.docs.Collection(db.PredictionsCollection)),
				model, archive, events,
			)
			r.Route("/auth", func(r chi.Router) {
				handlers.HeartAuthRouter(r, authService)
			})
			handlers.PredictionRouter(r, predictionService, authMiddleware)
		case config.ServiceSpend:
			expenseService := services.NewExpenseService(
				store.NewExpenseRepository(s.docs.Collection(db.ExpensesCollection)),
				model, s.cfg.Categories.FuzzyMatch, events,
			)
			r.Get("/", handlers.Status)
			r.Route("/auth", func(r chi.Router) {
				handlers.SpendAuthRouter(r, authService)
			})
			handlers.ExpenseRouter(r, expenseService, authMiddleware)
		}
	})
	return router
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// closes every client the server owns.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "service", s.cfg.Service, "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down http server")
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) close() {
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			slog.Warn("failed to close report storage", "error", err)
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			slog.Warn("failed to close message queue", "error", err)
		}
	}
	if s.docs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.docs.Close(ctx); err != nil {
			slog.Warn("failed to close document store", "error", err)
		}
	}
}
