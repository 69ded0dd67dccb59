package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	bolt "go.etcd.io/bbolt"
)

// Row is the persisted form of a table or tablet: the id, its serialized
// metadata, and a version bumped on every content change. Rows are inserted
// exactly once, updated only when the metadata differs, and never deleted by
// restarts or re-reporting.
type Row struct {
	ID       string          `json:"id"`
	Metadata json.RawMessage `json:"metadata"`
	Version  int64           `json:"version"`
}

// WriteOutcome classifies what a row write did.
type WriteOutcome int

const (
	WriteNone WriteOutcome = iota
	WriteInserted
	WriteUpdated
)

type rowWrite struct {
	bucket   string
	id       string
	metadata []byte
}

type sysStore struct {
	db *bolt.DB

	inserted atomic.Int64
	updated  atomic.Int64
}

const (
	sysFileName     = "sys.catalog"
	tableBucketKey  = "tables"
	tabletBucketKey = "tablets"
)

func openSysStore(dir string) (*sysStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("catalog directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	filePath := filepath.Join(dir, sysFileName)
	db, err := bolt.Open(filePath, 0o600, &bolt.Options{Timeout: 0})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(tableBucketKey)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(tabletBucketKey))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sysStore{db: db}, nil
}

// WriteBatch applies all writes in one transaction, so a report or a create
// lands all-or-nothing. Per row: first observation of an id inserts it,
// afterwards the row is rewritten only when the metadata changed, so settled
// re-reports cost zero writes.
func (s *sysStore) WriteBatch(writes []rowWrite) ([]WriteOutcome, error) {
	outcomes := make([]WriteOutcome, len(writes))
	err := s.db.Update(func(tx *bolt.Tx) error {
		for i, w := range writes {
			b := tx.Bucket([]byte(w.bucket))
			if b == nil {
				return fmt.Errorf("bucket %s missing", w.bucket)
			}
			key := []byte(w.id)
			prev := b.Get(key)
			if prev == nil {
				data, err := json.Marshal(Row{ID: w.id, Metadata: w.metadata, Version: 1})
				if err != nil {
					return err
				}
				if err := b.Put(key, data); err != nil {
					return err
				}
				outcomes[i] = WriteInserted
				continue
			}
			var row Row
			if err := json.Unmarshal(prev, &row); err != nil {
				return err
			}
			if bytes.Equal(row.Metadata, w.metadata) {
				outcomes[i] = WriteNone
				continue
			}
			row.Metadata = w.metadata
			row.Version++
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
			outcomes[i] = WriteUpdated
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		switch o {
		case WriteInserted:
			s.inserted.Add(1)
		case WriteUpdated:
			s.updated.Add(1)
		}
	}
	return outcomes, nil
}

// ForEach visits every row in the bucket.
func (s *sysStore) ForEach(bucket string, fn func(Row) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			return fn(row)
		})
	})
}

func (s *sysStore) Close() error {
	return s.db.Close()
}

// RowsInserted returns the number of catalog rows inserted since open.
func (s *sysStore) RowsInserted() int64 { return s.inserted.Load() }

// RowsUpdated returns the number of catalog rows rewritten since open.
func (s *sysStore) RowsUpdated() int64 { return s.updated.Load() }
