// Пакет config — загрузка и валидация конфигурации EduShare
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Режимы хранилища (EDU_STORAGE).
const (
	StorageDisk = "disk"
	StorageBlob = "blob"
)

// Config содержит все параметры конфигурации EduShare.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Идентификатор экземпляра (метки topologymetrics)
	ServiceID string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Путь к TLS сертификату (опционально, вместе с TLSKey)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string

	// --- Хранилище ---

	// Режим хранилища: disk или blob
	StorageMode string
	// Базовая директория для режима disk
	UploadDir string
	// Адрес S3-совместимого хранилища (host:port) для режима blob
	S3Endpoint string
	// Ключ доступа S3
	S3AccessKey string
	// Секретный ключ S3
	S3SecretKey string
	// Имя бакета
	S3Bucket string
	// Регион S3
	S3Region string
	// Использовать HTTPS для S3
	S3UseSSL bool
	// Путь health endpoint S3 для мониторинга зависимостей
	S3HealthPath string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Максимальный размер пула подключений
	DBMaxConns int

	// --- Ресурсы ---

	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Допустимые расширения файлов (без точки, нижний регистр)
	AllowedExtensions []string
	// Минимальное число загрузок пользователя для скачивания (0 — без ограничения)
	DownloadMinUploads int
	// Значение Access-Control-Allow-Origin для /view
	CORSOrigin string
	// Размер LRU-кэша метаданных ресурсов
	CacheSize int
	// TTL записей кэша
	CacheTTL time.Duration
	// Таймаут фонового обновления счётчиков после скачивания
	CounterTimeout time.Duration
	// Интервал сверки метаданных и хранилища (0 — только по запросу)
	ReconcileInterval time.Duration

	// --- Идентификация ---

	// URL JWKS endpoint (пусто — идентификатор из доверенного заголовка)
	JWKSUrl string
	// Заголовок с идентификатором пользователя от API gateway
	IdentityHeader string
	// Путь к CA-сертификату для JWKS endpoint (опционально)
	JWKSCACert string
	// Пропуск проверки TLS-сертификата JWKS endpoint
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допуск расхождения часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (0 — без ограничения, длинные потоки)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- topologymetrics ---

	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// EDU_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("EDU_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("EDU_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("EDU_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.ServiceID = getEnvDefault("EDU_SERVICE_ID", "edushare")

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("EDU_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("EDU_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("EDU_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("EDU_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// EDU_TLS_CERT / EDU_TLS_KEY — задаются только парой
	cfg.TLSCert = getEnvDefault("EDU_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("EDU_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("EDU_TLS_CERT и EDU_TLS_KEY должны задаваться вместе")
	}

	// --- Хранилище ---

	// EDU_STORAGE — режим хранилища (по умолчанию blob)
	cfg.StorageMode = strings.ToLower(getEnvDefault("EDU_STORAGE", StorageBlob))
	switch cfg.StorageMode {
	case StorageDisk:
		cfg.UploadDir = getEnvDefault("EDU_UPLOAD_DIR", "./uploads")
	case StorageBlob:
		if cfg.S3Endpoint, err = getEnvRequired("EDU_S3_ENDPOINT"); err != nil {
			return nil, err
		}
		if cfg.S3AccessKey, err = getEnvRequired("EDU_S3_ACCESS_KEY"); err != nil {
			return nil, err
		}
		if cfg.S3SecretKey, err = getEnvRequired("EDU_S3_SECRET_KEY"); err != nil {
			return nil, err
		}
		cfg.S3Bucket = getEnvDefault("EDU_S3_BUCKET", "files")
		cfg.S3Region = getEnvDefault("EDU_S3_REGION", "us-east-1")
		cfg.S3HealthPath = getEnvDefault("EDU_S3_HEALTH_PATH", "/minio/health/live")
		cfg.S3UseSSL, err = getEnvBool("EDU_S3_USE_SSL", false)
		if err != nil {
			return nil, fmt.Errorf("EDU_S3_USE_SSL: %w", err)
		}
	default:
		return nil, fmt.Errorf("EDU_STORAGE: недопустимое значение %q, допустимые: disk, blob", cfg.StorageMode)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("EDU_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("EDU_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("EDU_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("EDU_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("EDU_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("EDU_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBMaxConns, err = getEnvInt("EDU_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("EDU_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("EDU_DB_MAX_CONNS: значение должно быть не меньше 1, получено %d", cfg.DBMaxConns)
	}
	cfg.DBSSLMode = getEnvDefault("EDU_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("EDU_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Ресурсы ---

	// EDU_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 10 MiB)
	cfg.MaxUploadSize, err = getEnvInt64("EDU_MAX_UPLOAD_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("EDU_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("EDU_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	cfg.AllowedExtensions = parseExtensions(getEnvDefault("EDU_ALLOWED_EXTENSIONS", "pdf,doc,docx,ppt,pptx,txt"))
	if len(cfg.AllowedExtensions) == 0 {
		return nil, fmt.Errorf("EDU_ALLOWED_EXTENSIONS: список не может быть пустым")
	}

	// EDU_DOWNLOAD_MIN_UPLOADS — порог загрузок для скачивания (по умолчанию 0, выключено)
	cfg.DownloadMinUploads, err = getEnvInt("EDU_DOWNLOAD_MIN_UPLOADS", 0)
	if err != nil {
		return nil, fmt.Errorf("EDU_DOWNLOAD_MIN_UPLOADS: %w", err)
	}
	if cfg.DownloadMinUploads < 0 {
		return nil, fmt.Errorf("EDU_DOWNLOAD_MIN_UPLOADS: значение не может быть отрицательным")
	}

	cfg.CORSOrigin = getEnvDefault("EDU_CORS_ORIGIN", "*")

	cfg.CacheSize, err = getEnvInt("EDU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("EDU_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("EDU_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.CacheTTL, err = getEnvDuration("EDU_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("EDU_CACHE_TTL: %w", err)
	}

	cfg.CounterTimeout, err = getEnvDuration("EDU_COUNTER_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EDU_COUNTER_TIMEOUT: %w", err)
	}
	if cfg.CounterTimeout <= 0 {
		return nil, fmt.Errorf("EDU_COUNTER_TIMEOUT: значение должно быть > 0")
	}

	// EDU_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h, 0 — выключено)
	cfg.ReconcileInterval, err = getEnvDuration("EDU_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("EDU_RECONCILE_INTERVAL: %w", err)
	}

	// --- Идентификация ---

	cfg.JWKSUrl = getEnvDefault("EDU_JWKS_URL", "")
	cfg.IdentityHeader = getEnvDefault("EDU_IDENTITY_HEADER", "X-User-ID")
	cfg.JWKSCACert = getEnvDefault("EDU_JWKS_CA_CERT", "")
	cfg.TLSSkipVerify, err = getEnvBool("EDU_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("EDU_TLS_SKIP_VERIFY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("EDU_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EDU_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("EDU_JWKS_REFRESH_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EDU_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("EDU_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EDU_JWT_LEEWAY: %w", err)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("EDU_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EDU_HTTP_READ_TIMEOUT: %w", err)
	}
	// Потоковая отдача больших файлов: по умолчанию без таймаута записи
	cfg.HTTPWriteTimeout, err = getEnvDuration("EDU_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("EDU_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("EDU_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EDU_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("EDU_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EDU_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthCheckInterval, err = getEnvDuration("EDU_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EDU_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("EDU_DEPHEALTH_GROUP", "edushare")

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без учётных данных (для лейблов мониторинга).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// S3URL возвращает HTTP(S)-адрес S3 endpoint для проверок доступности.
func (c *Config) S3URL() string {
	scheme := "http"
	if c.S3UseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.S3Endpoint
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
// Отрицательные длительности отклоняются.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("длительность не может быть отрицательной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseExtensions разбирает список расширений через запятую.
// Точки и пробелы убираются, регистр приводится к нижнему.
func parseExtensions(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "."))
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
