package database

import "fmt"

type NoDBDriverError struct {
	Engine string
}

func (e *NoDBDriverError) Error() string {
	return fmt.Sprintf("Couldn't find driver for engine %s", e.Engine)
}

// NoDatabaseError is returned by file backed engines when the database file
// does not exist.
type NoDatabaseError struct {
	Path string
}

func (e *NoDatabaseError) Error() string {
	return fmt.Sprintf("There was no sqlite database at %s", e.Path)
}
