// Package resource adapts local byte sources to the read-only handle served
// during a transfer: a name, a fixed total size and a clipped ranged read.
package resource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// clip returns the number of bytes that may be read at offset without going
// past size. It is zero when offset is at or beyond the end.
func clip(size, offset, length int64) int64 {
	if offset < 0 || length <= 0 || offset >= size {
		return 0
	}
	if length > size-offset {
		return size - offset
	}
	return length
}

// Bytes is an in-memory resource.
type Bytes struct {
	name string
	data []byte
}

func NewBytes(name string, data []byte) *Bytes {
	return &Bytes{name: name, data: data}
}

func (b *Bytes) Name() string { return b.name }
func (b *Bytes) Size() int64  { return int64(len(b.data)) }

func (b *Bytes) ReadAt(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := clip(b.Size(), offset, length)
	if n == 0 {
		return []byte{}, nil
	}
	out := make([]byte, n)
	copy(out, b.data[offset:offset+n])
	return out, nil
}

// File serves a local file. The size is captured at open time and stays fixed
// for the lifetime of the handle even if the file grows afterwards.
type File struct {
	name string
	path string
	size int64
	f    *os.File
}

// OpenFile opens path for serving. An empty name defaults to the base name.
func OpenFile(path, name string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return &File{name: name, path: path, size: info.Size(), f: f}, nil
}

func (r *File) Name() string { return r.name }
func (r *File) Size() int64  { return r.size }
func (r *File) Path() string { return r.path }

// ReadAt reads the clipped range. os.File.ReadAt is safe for concurrent use,
// so several in-flight reads may share one handle.
func (r *File) ReadAt(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := clip(r.size, offset, length)
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	read, err := r.f.ReadAt(buf, offset)
	if err != nil && !(err == io.EOF && int64(read) == n) {
		return nil, fmt.Errorf("failed to read %s at %d: %w", r.name, offset, err)
	}
	return buf[:read], nil
}

func (r *File) Close() error {
	return r.f.Close()
}
