// Пакет server — HTTP-сервер EduShare с graceful shutdown.
// TLS включается, если заданы EDU_TLS_CERT и EDU_TLS_KEY.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/edushare/internal/api/handlers"
	"github.com/bigkaa/edushare/internal/api/middleware"
	"github.com/bigkaa/edushare/internal/config"
)

// Handlers — набор обработчиков, из которых собирается маршрутизатор.
type Handlers struct {
	Resources   *handlers.ResourcesHandler
	Health      *handlers.HealthHandler
	System      *handlers.SystemHandler
	Maintenance *handlers.MaintenanceHandler
	OpenAPI     http.Handler
}

// NewRouter создаёт маршрутизатор со всеми маршрутами.
// identity — middleware, кладущий идентификатор пользователя в контекст
// (JWTAuth.Middleware или HeaderIdentity). Анонимные запросы он пропускает,
// защищённые маршруты дополнительно закрыты RequireIdentity.
func NewRouter(h Handlers, identity func(http.Handler) http.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware())

	// Инфраструктурные endpoints без идентификации
	r.Get("/health/live", h.Health.HealthLive)
	r.Get("/health/ready", h.Health.HealthReady)
	r.Get("/metrics", h.Health.GetMetrics)

	r.Group(func(r chi.Router) {
		r.Use(identity)

		r.Get("/api/info", h.System.GetInfo)
		if h.OpenAPI != nil {
			r.Method(http.MethodGet, "/api/openapi.json", h.OpenAPI)
		}

		r.Route("/api/resource", func(r chi.Router) {
			r.Get("/view/{id}", h.Resources.View)
			r.Get("/all", h.Resources.All)
			r.Get("/popular", h.Resources.Popular)
			r.Get("/subjects", h.Resources.Subjects)
			r.Get("/subject/{subject}", h.Resources.BySubject)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireIdentity)
				r.Get("/download/{id}", h.Resources.Download)
				r.Post("/upload", h.Resources.Upload)
				r.Get("/my-uploads", h.Resources.MyUploads)
				r.Get("/my-downloads", h.Resources.MyDownloads)
			})

			r.Get("/{id}", h.Resources.Get)
		})

		r.With(middleware.RequireIdentity).Post("/api/maintenance/reconcile", h.Maintenance.Reconcile)
	})

	return r
}

// Server — HTTP-сервер EduShare.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с таймаутами из конфигурации.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("ошибка открытия порта %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает соединения ln до отмены ctx, затем выполняет graceful shutdown
// с таймаутом cfg.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		tlsEnabled := s.cfg.TLSCert != "" && s.cfg.TLSKey != ""
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", ln.Addr().String()),
			slog.Bool("tls", tlsEnabled),
		)

		var err error
		if tlsEnabled {
			err = s.httpServer.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
