package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "test-key"

// generateTestToken подписывает claims ключом key (RS256).
func generateTestToken(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return signed
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

// newTestJWTAuth создаёт ключ и JWTAuth, проверяющий подписи этим ключом.
func newTestJWTAuth(t *testing.T) (*JWTAuth, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc из JWKS JSON: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJWTAuthWithKeyfunc(kf, 5*time.Second, logger), key
}

func validClaims(sub string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		PreferredUsername: "ivanov",
	}
}

func TestJWTAuth_ValidToken(t *testing.T) {
	auth, key := newTestJWTAuth(t)

	var gotSub, gotName string
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotName = UsernameFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/resource/all", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, validClaims("student-42")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if gotSub != "student-42" {
		t.Errorf("sub = %q, ожидался student-42", gotSub)
	}
	if gotName != "ivanov" {
		t.Errorf("username = %q, ожидался ivanov", gotName)
	}
}

func TestJWTAuth_AnonymousPassesThrough(t *testing.T) {
	auth, _ := newTestJWTAuth(t)

	called := false
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if sub := SubjectFromContext(r.Context()); sub != "" {
			t.Errorf("sub = %q для анонимного запроса", sub)
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("анонимный запрос не дошёл до handler")
	}
}

func TestJWTAuth_Rejected(t *testing.T) {
	auth, key := newTestJWTAuth(t)
	_, otherKey := newTestJWTAuth(t)

	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExp := validClaims("u1")
	noExp.ExpiresAt = nil

	noSub := validClaims("")

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"нет префикса bearer", "token123"},
		{"пустой токен", "Bearer "},
		{"мусор", "Bearer not.a.jwt"},
		{"просрочен", "Bearer " + generateTestToken(t, key, expired)},
		{"без exp", "Bearer " + generateTestToken(t, key, noExp)},
		{"без sub", "Bearer " + generateTestToken(t, key, noSub)},
		{"чужой ключ", "Bearer " + generateTestToken(t, otherKey, validClaims("u1"))},
	}

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

func TestHeaderIdentity(t *testing.T) {
	var got string
	handler := HeaderIdentity("X-User-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SubjectFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "  student-7 ")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "student-7" {
		t.Errorf("sub = %q, ожидался student-7", got)
	}

	got = "unchanged"
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "" {
		t.Errorf("sub = %q без заголовка, ожидалась пустая строка", got)
	}
}

func TestRequireIdentity(t *testing.T) {
	handler := RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("без идентификатора: статус %d, ожидался 401", rec.Code)
	}

	ctx := context.WithValue(context.Background(), ContextKeySubject, "u1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	if rec.Code != http.StatusNoContent {
		t.Errorf("с идентификатором: статус %d, ожидался 204", rec.Code)
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	if sub := SubjectFromContext(context.Background()); sub != "" {
		t.Errorf("ожидалась пустая строка, получено %q", sub)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"Bearer abc.def", "abc.def", nil},
		{"bearer  abc ", "abc", nil},
		{"Bearer", "", errMalformedAuthorization},
		{"Basic abc", "", errMalformedAuthorization},
		{"Bearer    ", "", errEmptyToken},
	}
	for _, tt := range tests {
		got, err := bearerToken(tt.header)
		if err != tt.err || got != tt.want {
			t.Errorf("bearerToken(%q) = %q, %v; ожидается %q, %v", tt.header, got, err, tt.want, tt.err)
		}
	}
}
