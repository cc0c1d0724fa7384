// params.go — разбор параметров пути.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// resourceIDParam извлекает {id} из пути как UUID.
// Некорректный идентификатор — false: клиенту отвечают 404, как на неизвестный ресурс.
func resourceIDParam(r *http.Request) (string, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", false
	}
	return id.String(), true
}
