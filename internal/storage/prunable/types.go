package prunable

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Prunable is implemented by storage backends that retention can clean up.
// Keys are relative to the backend, the same keys OpenWriter accepts.
type Prunable interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
