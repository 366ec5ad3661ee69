package storage

import (
	"context"
	"io"

	"github.com/dev-tams/dbbackup/internal/storage/object"
)

type Writer = object.Writer

type Storage interface {
	Name() string
	OpenWriter(ctx context.Context, key string) (Writer, error)
	OpenReader(ctx context.Context, key string) (io.ReadCloser, error)
}
