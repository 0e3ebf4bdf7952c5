package resource

import (
	"fmt"
	"os"

	"github.com/jaywantadh/pullsrc/internal/storage"
)

// Staged serves an object from the staging area through its materialized copy.
type Staged struct {
	*File
	ID        string
	temporary bool
}

// OpenStaged materializes the staged object id and opens it for serving under
// name.
func OpenStaged(store storage.Storage, id, name, password string) (*Staged, error) {
	path, temporary, err := store.Materialize(id, password)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize %s: %w", id, err)
	}
	f, err := OpenFile(path, name)
	if err != nil {
		if temporary {
			os.Remove(path)
		}
		return nil, err
	}
	return &Staged{File: f, ID: id, temporary: temporary}, nil
}

// Close closes the file and removes it if it was a temporary copy.
func (s *Staged) Close() error {
	err := s.File.Close()
	if s.temporary {
		if rmErr := os.Remove(s.File.Path()); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}
