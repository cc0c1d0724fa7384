package model

// StoredObject — результат успешной записи в хранилище.
type StoredObject struct {
	// ID — идентификатор объекта: абсолютный путь (disk) или ключ (blob)
	ID string
	// Kind — вариант хранилища, выполнивший запись
	Kind StorageKind
	// Name — оригинальное имя файла, переданное при записи
	Name string
	// Size — фактически записанное число байт
	Size int64
	// ContentType — MIME-тип, переданный при записи
	ContentType string
}

// ObjectInfo — сведения об объекте, возвращаемые Stat.
type ObjectInfo struct {
	ID string
	// Name — имя объекта (для blob — оригинальное имя из метаданных)
	Name        string
	Size        int64
	ContentType string
}
