// Пакет httprange — разбор заголовка Range для одиночного диапазона байт.
//
// Поддерживается только форма bytes=START-END, где любая из границ может
// отсутствовать. Синтаксически некорректный заголовок игнорируется
// (ответ отдаётся целиком), а невыполнимый диапазон даёт ErrUnsatisfiable (416).
package httprange

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrUnsatisfiable — диапазон не может быть выполнен для объекта данного размера.
var ErrUnsatisfiable = errors.New("диапазон не может быть выполнен")

var rangePattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// Window — выполнимый диапазон байт, границы включительно.
type Window struct {
	Start       int64
	End         int64
	ChunkLength int64
}

// EndExclusive возвращает правую границу, не входящую в диапазон.
func (w *Window) EndExclusive() int64 {
	return w.End + 1
}

// ContentRange возвращает значение заголовка Content-Range для ответа 206.
func (w *Window) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", w.Start, w.End, size)
}

// UnsatisfiedRange возвращает значение Content-Range для ответа 416.
func UnsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Parse разбирает заголовок Range относительно размера объекта.
//
// Результаты:
//   - nil, nil — заголовка нет или он не распознан, отдаётся весь объект;
//   - nil, ErrUnsatisfiable — start > end, end >= size или число вне int64;
//   - *Window, nil — выполнимый диапазон.
//
// Пропущенный start означает 0, пропущенный end означает size-1.
// Форма bytes=-N трактуется как 0..N, а не как последние N байт.
func Parse(header string, size int64) (*Window, error) {
	if header == "" {
		return nil, nil
	}

	m := rangePattern.FindStringSubmatch(header)
	if m == nil {
		return nil, nil
	}

	start := int64(0)
	if m[1] != "" {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, ErrUnsatisfiable
		}
		start = n
	}

	end := size - 1
	if m[2] != "" {
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil, ErrUnsatisfiable
		}
		end = n
	}

	if start > end || end >= size {
		return nil, ErrUnsatisfiable
	}

	return &Window{
		Start:       start,
		End:         end,
		ChunkLength: end - start + 1,
	}, nil
}
