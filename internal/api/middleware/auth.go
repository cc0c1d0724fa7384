// auth.go — идентификация пользователя EduShare.
//
// JWTAuth проверяет Bearer JWT (RS256) по ключам JWKS (EDU_JWKS_URL).
// HeaderIdentity доверяет заголовку EDU_IDENTITY_HEADER, который выставляет
// API Gateway после собственной аутентификации.
//
// Анонимный запрос проходит дальше без идентификатора; маршруты,
// которым он нужен, закрываются RequireIdentity.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/edushare/internal/api/errors"
)

type contextKey string

const (
	// ContextKeySubject — идентификатор пользователя (sub или значение заголовка).
	ContextKeySubject contextKey = "subject"
	// ContextKeyUsername — preferred_username из JWT.
	ContextKeyUsername contextKey = "username"
)

var (
	errMalformedAuthorization = errors.New("ожидается Authorization: Bearer <token>")
	errEmptyToken             = errors.New("пустой Bearer token")
)

// Claims — поля токена, которые читает EduShare.
type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// JWTAuthConfig — параметры JWKS-клиента и проверки токенов.
type JWTAuthConfig struct {
	JWKSURL         string
	CACertPath      string // дополнительный CA для JWKS endpoint
	TLSSkipVerify   bool
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	JWTLeeway       time.Duration
}

// JWTAuth проверяет Bearer-токены по ключам из JWKS.
type JWTAuth struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
	logger *slog.Logger
}

// NewJWTAuth подключает JWKS по URL. Недоступный при старте endpoint
// не мешает запуску: ключи подтянутся при следующем обновлении.
func NewJWTAuth(cfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	client, err := jwksHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	store, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    client,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("JWKS не обновлён",
				slog.String("url", cfg.JWKSURL),
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("JWKS storage %s: %w", cfg.JWKSURL, err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: store})
	if err != nil {
		return nil, fmt.Errorf("keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(kf, cfg.JWTLeeway, logger), nil
}

// jwksHTTPClient — клиент JWKS с таймаутом и, при необходимости, своим CA.
func jwksHTTPClient(cfg JWTAuthConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify} //nolint:gosec // EDU_TLS_SKIP_VERIFY

	if cfg.CACertPath != "" {
		pem, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("CA-сертификат %s: %w", cfg.CACertPath, err)
		}
		roots, err := x509.SystemCertPool()
		if err != nil {
			roots = x509.NewCertPool()
		}
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA-сертификат %s: PEM не содержит сертификатов", cfg.CACertPath)
		}
		tlsCfg.RootCAs = roots
	}

	return &http.Client{
		Timeout:   cfg.ClientTimeout,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}, nil
}

// NewJWTAuthWithKeyfunc собирает JWTAuth вокруг готовой keyfunc (тесты, статический JWKS).
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, leeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		keys: kf,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware кладёт sub (и preferred_username) токена в контекст.
// Запрос без Authorization проходит анонимно, неверный токен — 401.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := bearerToken(header)
			if err != nil {
				apierrors.Unauthorized(w, err.Error())
				return
			}

			claims, err := j.verify(r.Context(), raw)
			if err != nil {
				j.logger.Debug("Токен отклонён",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if claims.Subject == "" {
				apierrors.Unauthorized(w, "В токене нет sub")
				return
			}

			ctx := withSubject(r.Context(), claims.Subject)
			if claims.PreferredUsername != "" {
				ctx = context.WithValue(ctx, ContextKeyUsername, claims.PreferredUsername)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (j *JWTAuth) verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := j.parser.ParseWithClaims(raw, claims, j.keys.KeyfuncCtx(ctx))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("токен невалиден")
	}
	return claims, nil
}

// bearerToken извлекает токен из значения Authorization (схема без учёта регистра).
func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMalformedAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// HeaderIdentity берёт идентификатор пользователя из заголовка header.
func HeaderIdentity(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subject := strings.TrimSpace(r.Header.Get(header)); subject != "" {
				r = r.WithContext(withSubject(r.Context(), subject))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity отвечает 401 на запрос без идентификатора.
// Ставится после JWTAuth.Middleware или HeaderIdentity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SubjectFromContext(r.Context()) == "" {
			apierrors.Unauthorized(w, "Требуется идентификация пользователя")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}

// SubjectFromContext возвращает идентификатор пользователя или "".
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}

// UsernameFromContext возвращает preferred_username или "".
func UsernameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(ContextKeyUsername).(string)
	return name
}
