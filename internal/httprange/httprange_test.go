package httprange

import (
	"errors"
	"strconv"
	"testing"
)

func TestParse_NoRange(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"пустой заголовок", ""},
		{"другая единица", "items=0-10"},
		{"несколько диапазонов", "bytes=0-10,20-30"},
		{"мусор", "bytes=abc-def"},
		{"пробелы", "bytes= 0-10"},
		{"без дефиса", "bytes=100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Parse(tt.header, 1000)
			if err != nil {
				t.Fatalf("Parse(%q) вернул ошибку: %v", tt.header, err)
			}
			if w != nil {
				t.Errorf("Parse(%q) = %+v, ожидается nil", tt.header, w)
			}
		})
	}
}

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name              string
		header            string
		size              int64
		start, end, chunk int64
	}{
		{"полный диапазон", "bytes=100-199", 1000, 100, 199, 100},
		{"без конца", "bytes=900-", 1000, 900, 999, 100},
		{"без начала", "bytes=-99", 1000, 0, 99, 100},
		{"обе границы пусты", "bytes=-", 1000, 0, 999, 1000},
		{"один байт", "bytes=0-0", 1, 0, 0, 1},
		{"последний байт", "bytes=999-999", 1000, 999, 999, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Parse(tt.header, tt.size)
			if err != nil {
				t.Fatalf("Parse(%q) вернул ошибку: %v", tt.header, err)
			}
			if w == nil {
				t.Fatalf("Parse(%q) = nil, ожидается диапазон", tt.header)
			}
			if w.Start != tt.start || w.End != tt.end || w.ChunkLength != tt.chunk {
				t.Errorf("Parse(%q) = {%d %d %d}, ожидается {%d %d %d}",
					tt.header, w.Start, w.End, w.ChunkLength, tt.start, tt.end, tt.chunk)
			}
			if w.ChunkLength != w.End-w.Start+1 {
				t.Errorf("ChunkLength = %d не равен End-Start+1", w.ChunkLength)
			}
			if w.EndExclusive() != w.End+1 {
				t.Errorf("EndExclusive() = %d", w.EndExclusive())
			}
		})
	}
}

func TestParse_Unsatisfiable(t *testing.T) {
	tests := []struct {
		name   string
		header string
		size   int64
	}{
		{"start больше end", "bytes=500-100", 1000},
		{"end за пределами", "bytes=0-1000", 1000},
		{"start за пределами", "bytes=1000-", 1000},
		{"пустой объект", "bytes=0-", 0},
		{"переполнение int64", "bytes=0-99999999999999999999", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Parse(tt.header, tt.size)
			if !errors.Is(err, ErrUnsatisfiable) {
				t.Fatalf("Parse(%q) err = %v, ожидается ErrUnsatisfiable", tt.header, err)
			}
			if w != nil {
				t.Errorf("Parse(%q) вернул диапазон %+v", tt.header, w)
			}
		})
	}
}

func TestHeaders(t *testing.T) {
	w := &Window{Start: 100, End: 199, ChunkLength: 100}
	if got := w.ContentRange(1000); got != "bytes 100-199/1000" {
		t.Errorf("ContentRange() = %q, ожидается bytes 100-199/1000", got)
	}
	if got := UnsatisfiedRange(1000); got != "bytes */1000" {
		t.Errorf("UnsatisfiedRange() = %q, ожидается bytes */1000", got)
	}
}

// Любой выполнимый диапазон лежит внутри объекта.
func TestParse_WindowInsideObject(t *testing.T) {
	const size = 64
	for s := int64(0); s < size+2; s++ {
		for e := int64(0); e < size+2; e++ {
			header := "bytes=" + strconv.FormatInt(s, 10) + "-" + strconv.FormatInt(e, 10)
			w, err := Parse(header, size)
			if err != nil {
				if s <= e && e < size {
					t.Fatalf("Parse(%q) отклонил выполнимый диапазон", header)
				}
				continue
			}
			if w.Start < 0 || w.Start > w.End || w.End >= size {
				t.Fatalf("Parse(%q) = %+v вне объекта", header, w)
			}
		}
	}
}
