// Точка входа EduShare — сервис обмена учебными материалами.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// подключает хранилище файлов (disk или blob), собирает сервисный слой,
// запускает фоновые задачи (reconciliation, topologymetrics)
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/edushare/internal/api/handlers"
	"github.com/bigkaa/edushare/internal/api/middleware"
	"github.com/bigkaa/edushare/internal/api/openapi"
	"github.com/bigkaa/edushare/internal/config"
	"github.com/bigkaa/edushare/internal/database"
	"github.com/bigkaa/edushare/internal/repository"
	"github.com/bigkaa/edushare/internal/server"
	"github.com/bigkaa/edushare/internal/service"
	"github.com/bigkaa/edushare/internal/storage/factory"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("EduShare запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_mode", cfg.StorageMode),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	resourceRepo := repository.NewResourceRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	downloadRepo := repository.NewDownloadRepository(pool)

	// 6. Services
	files := service.NewFileService(logger)
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	dispatcher := service.NewCounterDispatcher(cfg.CounterTimeout, logger)

	resourceSvc := service.NewResourceService(
		files, resourceRepo, userRepo, downloadRepo,
		cache, dispatcher,
		service.ResourceServiceConfig{
			MaxUploadSize:      cfg.MaxUploadSize,
			AllowedExtensions:  cfg.AllowedExtensions,
			DownloadMinUploads: cfg.DownloadMinUploads,
		},
		logger,
	)
	reconcileSvc := service.NewReconcileService(files, resourceRepo, cfg.ReconcileInterval, logger)

	// 7. Идентификация пользователя: JWT (JWKS) или доверенный заголовок
	var identity func(http.Handler) http.Handler
	if cfg.JWKSUrl != "" {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		identity = jwtAuth.Middleware()
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSUrl))
	} else {
		identity = middleware.HeaderIdentity(cfg.IdentityHeader)
		logger.Warn("EDU_JWKS_URL не задан, идентификатор пользователя берётся из заголовка",
			slog.String("header", cfg.IdentityHeader),
		)
	}

	// 8. Handlers
	openapiHandler, err := openapi.NewHandler()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}
	router := server.NewRouter(server.Handlers{
		Resources:   handlers.NewResourcesHandler(resourceSvc, files, cfg.MaxUploadSize, cfg.CORSOrigin, logger),
		Health:      handlers.NewHealthHandler(database.NewReadinessChecker(pool), files),
		System:      handlers.NewSystemHandler(cfg, files),
		Maintenance: handlers.NewMaintenanceHandler(reconcileSvc, logger),
		OpenAPI:     openapiHandler,
	}, identity, logger)

	// 9. Подключение хранилища файлов и перевод FileService в Ready.
	// Ошибка конфигурации или недоступное хранилище — фатально.
	adapter, err := factory.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения хранилища",
			slog.String("storage_mode", cfg.StorageMode),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if err := files.Init(adapter); err != nil {
		logger.Error("Ошибка инициализации файлового сервиса", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Фоновые задачи
	reconcileSvc.Start(ctx)

	// 10.1 topologymetrics — мониторинг зависимостей (PostgreSQL + S3 в режиме blob)
	dephealthCfg := service.DephealthConfig{
		ServiceID:     cfg.ServiceID,
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL(),
		CheckInterval: cfg.DephealthCheckInterval,
	}
	if cfg.StorageMode == config.StorageBlob {
		dephealthCfg.S3URL = cfg.S3URL()
		dephealthCfg.S3HealthPath = cfg.S3HealthPath
	}
	dephealthSvc, err := service.NewDephealthService(dephealthCfg, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		dephealthSvc = nil
	}

	// 11. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, router)
	runErr := srv.Run()

	// 12. Остановка: дождаться фоновых обновлений счётчиков, затем фоновых задач
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := dispatcher.Wait(waitCtx); err != nil {
		logger.Warn("Не все обновления счётчиков завершены", slog.String("error", err.Error()))
	}
	waitCancel()

	cancel()
	reconcileSvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("EduShare остановлен")
}
