// Пакет openapi — встроенное описание HTTP API EduShare.
// Документ загружается и валидируется kin-openapi при старте,
// отдаётся клиентам в JSON по GET /api/openapi.json.
package openapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var documentYAML []byte

var (
	loadOnce  sync.Once
	loadedDoc *openapi3.T
	loadErr   error
)

// Load возвращает разобранный и провалидированный документ.
// Разбор выполняется один раз за время жизни процесса.
func Load() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loadedDoc, loadErr = parse(context.Background(), documentYAML)
	})
	return loadedDoc, loadErr
}

func parse(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI: %w", err)
	}
	return doc, nil
}

// Handler отдаёт документ в JSON. JSON сериализуется один раз при создании.
type Handler struct {
	body []byte
}

// NewHandler создаёт обработчик. Возвращает ошибку, если встроенный документ невалиден.
func NewHandler() (*Handler, error) {
	doc, err := Load()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI: %w", err)
	}
	return &Handler{body: body}, nil
}

// ServeHTTP обрабатывает GET /api/openapi.json.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.body)
}
