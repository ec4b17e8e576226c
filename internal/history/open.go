package history

import "fmt"

// Backend kinds accepted by OpenBackend.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// OpenBackend opens the persistent store of the given kind at path.
func OpenBackend(kind, path string) (Backend, error) {
	switch kind {
	case BackendSQLite:
		return NewSQLiteBackend(path)
	case BackendFile:
		return NewFileBackend(path)
	case BackendBadger:
		return NewBadgerBackend(path)
	case BackendMemory:
		return NewMemoryBackend(nil), nil
	}
	return nil, fmt.Errorf("unknown history backend %q", kind)
}
