package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/teamtasks/apiserver/config"
	"github.com/teamtasks/apiserver/internal/auth"
	"github.com/teamtasks/apiserver/internal/db"
	"github.com/teamtasks/apiserver/internal/handlers"
	"github.com/teamtasks/apiserver/internal/logging"
	"github.com/teamtasks/apiserver/internal/mq"
	"github.com/teamtasks/apiserver/internal/services"
	"github.com/teamtasks/apiserver/internal/store"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server, its router and the background consumer.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger

	db       *sql.DB
	redis    *redis.Client
	queue    *mq.TaskQueue
	consumer *services.TaskEventConsumer
}

// New connects to every configured backend and builds the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Server{logger: logger, db: dbConn}

	var revoker auth.Revoker
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		revoker = auth.NewRedisRevoker(s.redis)
	} else {
		logger.Info("REDIS_ADDR not set, logout will not revoke tokens")
	}

	userRepo := store.NewUserRepository(dbConn)
	notificationRepo := store.NewNotificationRepository(dbConn)

	queue, err := mq.Open(ctx, cfg.MQ)
	switch {
	case errors.Is(err, mq.ErrDisabled):
		logger.Info("MQ_BACKEND not set, task events will not be consumed")
	case err != nil:
		s.close()
		return nil, err
	default:
		s.queue = queue
		s.consumer = services.NewTaskEventConsumer(notificationRepo, logger.Named("task-events").With(zap.String("channel", queue.Channel())))
	}

	s.router = NewRouter(cfg, logger, handlers.UserRouterConfig{
		Users:         services.NewUserService(userRepo, auth.NewPasswordHasher(cfg.Auth.HashConcurrency)),
		Notifications: services.NewNotificationService(notificationRepo),
		Tokens:        tokens,
		Cookie:        auth.SessionCookie{Secure: !cfg.IsDevelopment(), MaxAge: cfg.Auth.TokenTTL},
		Revoker:       revoker,
		Verbose:       cfg.IsDevelopment(),
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// NewRouter builds the HTTP routes. Development allows any origin; other
// environments only the configured allow-list.
func NewRouter(cfg config.Config, logger *zap.Logger, users handlers.UserRouterConfig) *chi.Mux {
	corsOptions := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if cfg.IsDevelopment() {
		corsOptions.AllowOriginFunc = func(*http.Request, string) bool { return true }
	} else {
		corsOptions.AllowedOrigins = cfg.AllowedOrigins
	}

	router := chi.NewRouter()
	router.Use(
		cors.Handler(corsOptions),
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.RequestLogger(logger),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/user", func(r chi.Router) {
		handlers.UserRouter(r, users)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP and consumes task events until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if s.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.consumer.Run(ctx, s.queue)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		serveErr <- s.httpServer.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		err = s.httpServer.Shutdown(shutdownCtx)
	}

	cancel()
	wg.Wait()
	s.close()
	return err
}

func (s *Server) close() {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
