// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrNotInitialized — FileService используется до подключения хранилища.
	ErrNotInitialized = errors.New("файловый сервис не инициализирован")
	// ErrAlreadyInitialized — повторная инициализация FileService.
	ErrAlreadyInitialized = errors.New("файловый сервис уже инициализирован")
	// ErrIdentityRequired — операция требует идентификатора пользователя.
	ErrIdentityRequired = errors.New("требуется идентификатор пользователя")
)

// UploadError — ошибка валидации загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QuotaError — пользователь не выполнил условие по числу загрузок.
type QuotaError struct {
	// Required — минимальное число загрузок
	Required int64
	// Uploaded — текущее число загрузок пользователя
	Uploaded int64
}

// Remaining возвращает число недостающих загрузок.
func (e *QuotaError) Remaining() int64 {
	return e.Required - e.Uploaded
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("для скачивания нужно загрузить ещё %d документ(ов)", e.Remaining())
}
