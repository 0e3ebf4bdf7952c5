package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var ErrNotFound = errors.New("metadata not found")

const (
	resourcePrefix = "resource:"
	transferPrefix = "transfer:"
)

// ResourceMetadata describes a resource staged for serving.
type ResourceMetadata struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	StoredSize int64  `json:"stored_size"`
	Compressed bool   `json:"compressed"`
	Sealed     bool   `json:"sealed"`
	CreatedAt  int64  `json:"created_at"` // Unix timestamp
}

// TransferRecord is the history entry of one transfer.
type TransferRecord struct {
	ID         string          `json:"id"`
	Endpoint   string          `json:"endpoint"`
	ResourceID string          `json:"resource_id,omitempty"`
	Name       string          `json:"name"`
	Size       int64           `json:"size"`
	Status     string          `json:"status"`
	Loaded     int64           `json:"loaded"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// MetadataStore wraps BadgerDB for metadata operations.
type MetadataStore struct {
	db *badger.DB
}

// OpenMetadataStore opens (or creates) a BadgerDB at the given path.
func OpenMetadataStore(dbPath string) (*MetadataStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &MetadataStore{db: db}, nil
}

// Close closes the BadgerDB.
func (ms *MetadataStore) Close() error {
	return ms.db.Close()
}

func (ms *MetadataStore) put(key string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ms.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (ms *MetadataStore) get(key string, v any) error {
	err := ms.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// scan decodes every value stored under prefix.
func (ms *MetadataStore) scan(prefix string, decode func(val []byte) error) error {
	return ms.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(decode); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutResource stores staged resource metadata.
func (ms *MetadataStore) PutResource(meta ResourceMetadata) error {
	return ms.put(resourcePrefix+meta.ID, meta)
}

// GetResource retrieves staged resource metadata by id.
func (ms *MetadataStore) GetResource(id string) (ResourceMetadata, error) {
	var meta ResourceMetadata
	err := ms.get(resourcePrefix+id, &meta)
	return meta, err
}

// DeleteResource removes staged resource metadata.
func (ms *MetadataStore) DeleteResource(id string) error {
	return ms.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(resourcePrefix + id))
	})
}

// ListResources returns all staged resources, newest first.
func (ms *MetadataStore) ListResources() ([]ResourceMetadata, error) {
	var out []ResourceMetadata
	err := ms.scan(resourcePrefix, func(val []byte) error {
		var meta ResourceMetadata
		if err := json.Unmarshal(val, &meta); err != nil {
			return err
		}
		out = append(out, meta)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, err
}

// PutTransfer stores or replaces a transfer record.
func (ms *MetadataStore) PutTransfer(rec TransferRecord) error {
	return ms.put(transferPrefix+rec.ID, rec)
}

// GetTransfer retrieves a transfer record by id.
func (ms *MetadataStore) GetTransfer(id string) (TransferRecord, error) {
	var rec TransferRecord
	err := ms.get(transferPrefix+id, &rec)
	return rec, err
}

// ListTransfers returns the transfer history, newest first.
func (ms *MetadataStore) ListTransfers() ([]TransferRecord, error) {
	var out []TransferRecord
	err := ms.scan(transferPrefix, func(val []byte) error {
		var rec TransferRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, err
}

// Helper to create a new ResourceMetadata
func NewResourceMetadata(id, name string, size, storedSize int64, compressed, sealed bool) ResourceMetadata {
	return ResourceMetadata{
		ID:         id,
		Name:       name,
		Size:       size,
		StoredSize: storedSize,
		Compressed: compressed,
		Sealed:     sealed,
		CreatedAt:  time.Now().Unix(),
	}
}
