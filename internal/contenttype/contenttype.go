// Пакет contenttype — определение MIME-типа документа по расширению имени файла.
package contenttype

import (
	"mime"
	"path/filepath"
	"strings"
)

// Default — тип для неизвестных расширений.
const Default = "application/octet-stream"

// Типы учебных документов. Приоритетнее системного реестра mime,
// который на разных ОС возвращает разные значения для офисных форматов.
var documentTypes = map[string]string{
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// Extension возвращает расширение имени файла без точки в нижнем регистре.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// For возвращает MIME-тип для имени файла.
func For(name string) string {
	ext := Extension(name)
	if ext == "" {
		return Default
	}
	if ct, ok := documentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return Default
}

// Resolve выбирает тип содержимого: заявленный клиентом, если он конкретный,
// иначе — по расширению имени файла.
func Resolve(declared, name string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != Default {
		if _, _, err := mime.ParseMediaType(declared); err == nil {
			return declared
		}
	}
	return For(name)
}
