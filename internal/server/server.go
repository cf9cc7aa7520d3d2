// Package server собирает HTTP сервис: маршруты, цепочку middleware и фоновые компоненты
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/aishu/internal/config"
	"github.com/iudanet/aishu/internal/csrf"
	"github.com/iudanet/aishu/internal/rollout"
	"github.com/iudanet/aishu/internal/server/handlers"
	"github.com/iudanet/aishu/internal/server/metrics"
	"github.com/iudanet/aishu/internal/server/middleware"
	"github.com/iudanet/aishu/internal/server/storage"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
	// ShutdownTimeout время на завершение активных запросов и запись аналитики
	ShutdownTimeout = 10 * time.Second
)

// Server HTTP сервис флагов и CSRF токенов
type Server struct {
	logger  *slog.Logger
	cfg     *config.Config
	store   storage.Storage
	cache   *rollout.CachedStore
	tracker *rollout.Tracker
	gate    *rollout.Gate
	limiter *middleware.RateLimiter
	metrics *metrics.Metrics
	guard   *csrf.Guard
	handler http.Handler
	version string
}

// New создает сервер поверх store; store закрывает вызывающая сторона
func New(cfg *config.Config, store storage.Storage, logger *slog.Logger, version string) (*Server, error) {
	guard, err := csrf.New(cfg.CSRFKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSRF guard: %w", err)
	}

	m := metrics.New()

	tracker := rollout.NewTracker(store, logger,
		rollout.WithBuffer(cfg.AnalyticsBuffer),
		rollout.WithWriteTimeout(cfg.AnalyticsWriteTimeout),
		rollout.WithDropObserver(m),
	)
	cache := rollout.NewCachedStore(store, cfg.FlagsCacheRefresh, logger)

	gate := rollout.New(cache, cfg.Environment, logger,
		rollout.WithTracker(tracker),
		rollout.WithObserver(m),
		rollout.WithAudit(store),
	)

	s := &Server{
		logger:  logger,
		cfg:     cfg,
		store:   store,
		cache:   cache,
		tracker: tracker,
		gate:    gate,
		limiter: middleware.NewRateLimiter(cfg.AdminRate, cfg.AdminWindow, logger),
		metrics: m,
		guard:   guard,
		version: version,
	}
	s.handler = s.routes()

	return s, nil
}

// Handler возвращает корневой http.Handler со всеми middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Gate возвращает вычислитель флагов сервиса
func (s *Server) Gate() *rollout.Gate {
	return s.gate
}

func (s *Server) routes() http.Handler {
	health := handlers.NewHealthHandler(s.logger, s.version, s.cfg.Environment)
	csrfHandler := handlers.NewCSRFHandler(s.logger, s.guard, s.cfg.SecureCookies)
	features := handlers.NewFeaturesHandler(s.logger, s.gate)
	admin := handlers.NewAdminHandler(s.logger, s.gate, s.cache, s.store, s.store)

	// Админские маршруты: только роль admin, с ограничением частоты
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return chain(h,
			middleware.RequireRole(s.logger, handlers.RoleAdmin),
			s.limiter.Middleware(),
		)
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/csrf", csrfHandler.Token)
	api.HandleFunc("GET /api/v1/features", features.List)
	api.HandleFunc("GET /api/v1/features/{name}", features.Get)
	api.Handle("GET /api/v1/admin/flags", adminOnly(admin.ListFlags))
	api.Handle("PUT /api/v1/admin/flags/{name}", adminOnly(admin.UpsertFlag))
	api.Handle("GET /api/v1/admin/flags/{name}/overrides", adminOnly(admin.ListOverrides))
	api.Handle("PUT /api/v1/admin/flags/{name}/overrides/{userID}", adminOnly(admin.SetOverride))
	api.Handle("DELETE /api/v1/admin/flags/{name}/overrides/{userID}", adminOnly(admin.DeleteOverride))
	api.Handle("GET /api/v1/admin/flags/{name}/stats", adminOnly(admin.Stats))
	api.Handle("GET /api/v1/admin/flags/{name}/audit", adminOnly(admin.Audit))

	jwtConfig := handlers.JWTConfig{
		Secret:         s.cfg.JWTSecret,
		AccessTokenTTL: s.cfg.AccessTokenTTL,
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /api/v1/health", health.Health)
	root.Handle("GET /metrics", s.metrics.Handler())
	root.Handle("/api/v1/", chain(api,
		middleware.AuthMiddleware(s.logger, jwtConfig),
		middleware.SessionMiddleware(s.logger, middleware.SessionConfig{
			Guard:         s.guard,
			Key:           s.cfg.SessionKey,
			SecureCookies: s.cfg.SecureCookies,
		}),
		middleware.CSRFMiddleware(s.logger, s.guard, s.metrics),
	))

	return chain(root,
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingWithSkip(s.logger, []string{"/api/v1/health", "/metrics"}),
		middleware.MetricsMiddleware(s.metrics),
	)
}

// chain применяет middleware так, что первый в списке выполняется первым
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Run слушает cfg.HTTPAddr до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает запросы на ln до отмены ctx, затем корректно завершается:
// дожидается активных запросов, дописывает очередь аналитики, останавливает фоновые горутины
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.cache.Start(ctx)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server started",
			"addr", ln.Addr().String(),
			"environment", s.cfg.Environment,
			"version", s.version)
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := s.tracker.Close(shutdownCtx); err != nil {
		s.logger.Warn("Analytics queue was not fully flushed", "error", err, "dropped", s.tracker.Dropped())
	}
	s.cache.Stop()
	s.limiter.Stop()

	s.logger.Info("HTTP server stopped")
	return serveErr
}
