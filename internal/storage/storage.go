package storage

import (
	"errors"
	"io"
)

var ErrNotFound = errors.New("staged object not found")

// PackOptions controls how an object is packed at rest.
type PackOptions struct {
	// Compress packs the object with lz4.
	Compress bool
	// Password seals the object when non-empty.
	Password string
}

// Object describes one staged object.
type Object struct {
	ID         string
	Size       int64
	StoredSize int64
	Compressed bool
	Sealed     bool
}

// Storage defines the staging area for resources waiting to be served.
type Storage interface {
	// Put packs data and returns the staged object. The id is the SHA-256 of the
	// unpacked content, so staging the same bytes twice yields the same id.
	Put(data io.Reader, opts PackOptions) (Object, error)
	// Get returns the unpacked content of a staged object.
	Get(id, password string) (io.ReadCloser, error)
	// Materialize unpacks a staged object into a plain file suitable for random
	// access and returns its path. When temporary is true the caller owns the
	// file and must remove it when done.
	Materialize(id, password string) (path string, temporary bool, err error)
	// Delete removes the object and any materialized copy.
	Delete(id string) error
}
