package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jaywantadh/pullsrc/internal/compressor"
	"github.com/jaywantadh/pullsrc/internal/encryptor"
)

const (
	flagCompressed byte = 1 << iota
	flagSealed
)

// LocalStorage implements the Storage interface for the local filesystem.
// Packed objects live in <base>/objects/<id>, each prefixed with a one-byte
// flag header; materialized copies live in <base>/cache/<id>.
type LocalStorage struct {
	basePath string
	sealer   encryptor.Sealer
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	for _, dir := range []string{"objects", "cache"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &LocalStorage{basePath: basePath, sealer: encryptor.NewSealer()}, nil
}

func (s *LocalStorage) objectPath(id string) string {
	return filepath.Join(s.basePath, "objects", id)
}

func (s *LocalStorage) cachePath(id string) string {
	return filepath.Join(s.basePath, "cache", id)
}

func validID(id string) bool {
	if len(id) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// Put stores an object on the local filesystem. The object is held in memory
// while it is packed.
func (s *LocalStorage) Put(data io.Reader, opts PackOptions) (Object, error) {
	plain, err := io.ReadAll(data)
	if err != nil {
		return Object{}, fmt.Errorf("failed to read object data: %w", err)
	}

	hash := sha256.Sum256(plain)
	id := hex.EncodeToString(hash[:])

	var flags byte
	packed := plain
	if opts.Compress {
		compressed, err := compressor.Compress(packed)
		if err != nil {
			return Object{}, err
		}
		// Keep the raw form when lz4 does not help.
		if len(compressed) < len(packed) {
			packed = compressed
			flags |= flagCompressed
		}
	}
	if opts.Password != "" {
		sealed, err := s.sealer.Seal(packed, opts.Password, []byte(id))
		if err != nil {
			return Object{}, fmt.Errorf("failed to seal object: %w", err)
		}
		packed = sealed
		flags |= flagSealed
	}

	blob := make([]byte, 0, len(packed)+1)
	blob = append(blob, flags)
	blob = append(blob, packed...)
	if err := os.WriteFile(s.objectPath(id), blob, 0644); err != nil {
		return Object{}, fmt.Errorf("failed to write object to file: %w", err)
	}
	if flags&flagSealed != 0 {
		// A plaintext copy cached while the object was unsealed must not outlive it.
		if err := os.Remove(s.cachePath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Object{}, fmt.Errorf("failed to drop cached copy: %w", err)
		}
	}

	return Object{
		ID:         id,
		Size:       int64(len(plain)),
		StoredSize: int64(len(blob)),
		Compressed: flags&flagCompressed != 0,
		Sealed:     flags&flagSealed != 0,
	}, nil
}

func (s *LocalStorage) readBlob(id string) (byte, []byte, error) {
	if !validID(id) {
		return 0, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	blob, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return 0, nil, fmt.Errorf("failed to open object file: %w", err)
	}
	if len(blob) == 0 {
		return 0, nil, fmt.Errorf("object %s is corrupt: missing header", id)
	}
	return blob[0], blob[1:], nil
}

func (s *LocalStorage) unpack(id, password string, flags byte, data []byte) ([]byte, error) {
	var err error
	if flags&flagSealed != 0 {
		if password == "" {
			return nil, fmt.Errorf("object %s is sealed: password required", id)
		}
		if data, err = s.sealer.Open(data, password, []byte(id)); err != nil {
			return nil, err
		}
	}
	if flags&flagCompressed != 0 {
		if data, err = compressor.Decompress(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Get retrieves an object from the local filesystem.
func (s *LocalStorage) Get(id, password string) (io.ReadCloser, error) {
	flags, blob, err := s.readBlob(id)
	if err != nil {
		return nil, err
	}
	data, err := s.unpack(id, password, flags, blob)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Materialize writes the unpacked object to the cache directory. Unsealed
// objects are cached once and reused. Sealed objects are never cached: each
// call writes a fresh temporary copy that the caller must remove.
func (s *LocalStorage) Materialize(id, password string) (string, bool, error) {
	flags, blob, err := s.readBlob(id)
	if err != nil {
		return "", false, err
	}
	sealed := flags&flagSealed != 0

	path := s.cachePath(id)
	if !sealed {
		if _, err := os.Stat(path); err == nil {
			return path, false, nil
		}
	}

	data, err := s.unpack(id, password, flags, blob)
	if err != nil {
		return "", false, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), id+".tmp-*")
	if err != nil {
		return "", false, fmt.Errorf("failed to create cache file: %w", err)
	}
	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return "", false, fmt.Errorf("failed to write cache file: %w", werr)
	}
	if sealed {
		return tmp.Name(), true, nil
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", false, fmt.Errorf("failed to publish cache file: %w", err)
	}
	return path, false, nil
}

func (s *LocalStorage) Delete(id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err := os.Remove(s.objectPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	if err := os.Remove(s.cachePath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cached copy: %w", err)
	}
	return nil
}
