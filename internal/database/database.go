// Пакет database — пул PostgreSQL (pgxpool), встроенные миграции
// схемы EduShare (golang-migrate) и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/edushare/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pingTimeout — предел ожидания ответа PostgreSQL в readiness probe.
const pingTimeout = 3 * time.Second

// Connect открывает пул размером cfg.DBMaxConns и проверяет доступность базы.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL %s:%d недоступен: %w", cfg.DBHost, cfg.DBPort, err)
	}

	logger.Info("Пул PostgreSQL открыт",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)

	return pool, nil
}

// Migrate доводит схему до последней встроенной версии.
// Уже актуальная схема — не ошибка.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка чтения встроенных миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", upErr)
	}

	version, dirty, _ := m.Version()
	logger.Info("Схема БД актуальна",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
		slog.Bool("changed", upErr == nil),
	)

	return nil
}

// ReadinessChecker — проверка PostgreSQL для /health/ready.
// Недоступная база — fail, исчерпанный пул — degraded.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// Name возвращает ключ проверки в ответе.
func (c *ReadinessChecker) Name() string {
	return "postgresql"
}

// CheckReady выполняет ping и оценивает загрузку пула.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return poolStatus(c.pool.Stat())
}

// poolSnapshot — часть pgxpool.Stat, нужная для оценки загрузки.
type poolSnapshot interface {
	AcquiredConns() int32
	MaxConns() int32
}

func poolStatus(s poolSnapshot) (string, string) {
	if limit := s.MaxConns(); limit > 0 && s.AcquiredConns() >= limit {
		return "degraded", fmt.Sprintf("пул исчерпан: занято %d из %d подключений", s.AcquiredConns(), limit)
	}
	return "ok", fmt.Sprintf("занято %d из %d подключений", s.AcquiredConns(), s.MaxConns())
}
