// Package object holds the types shared by the storage backends.
package object

import "io"

// Writer receives one backup object. Close commits it, Abort throws away
// whatever was written.
type Writer interface {
	io.WriteCloser
	Abort() error
	// Location returns the identifier (path, s3://bucket/key, etc)
	Location() string
}
