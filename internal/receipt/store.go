package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/checkstand/checkstand/internal/watch"
)

const (
	ledgerBucket  = "ledger"
	receiptsKey   = "receipts"
	versionKey    = "schema_version"
	schemaVersion = "1"
)

// Store persists the receipt list and exposes it as a reactive
// snapshot stream. Updates match by ID and are a no-op when the
// receipt is absent; concurrent writers are last-write-wins.
type Store interface {
	// GetAll returns the receipts in insertion order.
	GetAll() ([]Receipt, error)

	// Watch delivers the full list after every write until ctx is
	// cancelled. Latest-value-wins; slow readers may miss
	// intermediate snapshots.
	Watch(ctx context.Context) <-chan []Receipt

	// Insert appends a receipt to the list.
	Insert(r Receipt) error

	// Update replaces the receipt with a matching ID, if any.
	Update(r Receipt) error

	// DeleteByID removes the receipt with the given ID, if any.
	DeleteByID(id string) error

	// DeleteAll clears the list.
	DeleteAll() error

	// Close closes the underlying database.
	Close() error
}

// BoltStore implements Store on top of a bbolt database. The whole
// receipt list is a single versioned JSON blob under a fixed key;
// every write is a read-modify-rewrite of the blob inside one
// transaction.
type BoltStore struct {
	db       *bbolt.DB
	snapshot *watch.Value[[]Receipt]
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(ledgerBucket))
		if err != nil {
			return err
		}
		if bucket.Get([]byte(versionKey)) == nil {
			return bucket.Put([]byte(versionKey), []byte(schemaVersion))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger bucket: %w", err)
	}

	s := &BoltStore{db: db}

	initial, err := s.GetAll()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.snapshot = watch.NewValue(initial)

	return s, nil
}

func decodeReceipts(data []byte) []Receipt {
	if data == nil {
		return []Receipt{}
	}
	var receipts []Receipt
	if err := json.Unmarshal(data, &receipts); err != nil {
		// A corrupt blob is treated as an empty ledger rather than a
		// fatal error; the next write rewrites it.
		return []Receipt{}
	}
	return receipts
}

// GetAll returns the current receipt list in insertion order.
func (s *BoltStore) GetAll() ([]Receipt, error) {
	var receipts []Receipt
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		receipts = decodeReceipts(bucket.Get([]byte(receiptsKey)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading receipts: %w", err)
	}
	return receipts, nil
}

// Watch delivers the current list immediately and again after every
// write until ctx is cancelled.
func (s *BoltStore) Watch(ctx context.Context) <-chan []Receipt {
	return s.snapshot.Watch(ctx)
}

// rewrite applies fn to the decoded list and writes the result back as
// a single blob, then publishes the new snapshot to watchers.
func (s *BoltStore) rewrite(fn func([]Receipt) []Receipt) error {
	var updated []Receipt
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		updated = fn(decodeReceipts(bucket.Get([]byte(receiptsKey))))
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshaling receipts: %w", err)
		}
		return bucket.Put([]byte(receiptsKey), data)
	})
	if err != nil {
		return fmt.Errorf("rewriting receipts: %w", err)
	}
	s.snapshot.Set(updated)
	return nil
}

// Insert appends a receipt to the list.
func (s *BoltStore) Insert(r Receipt) error {
	return s.rewrite(func(receipts []Receipt) []Receipt {
		return append(receipts, r)
	})
}

// Update replaces the receipt with a matching ID. Updating a missing
// receipt is a no-op, not an error: the user may have deleted it while
// processing was still in flight.
func (s *BoltStore) Update(r Receipt) error {
	return s.rewrite(func(receipts []Receipt) []Receipt {
		for i := range receipts {
			if receipts[i].ID == r.ID {
				receipts[i] = r
			}
		}
		return receipts
	})
}

// DeleteByID removes the receipt with the given ID, if present.
func (s *BoltStore) DeleteByID(id string) error {
	return s.rewrite(func(receipts []Receipt) []Receipt {
		kept := receipts[:0]
		for _, r := range receipts {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		return kept
	})
}

// DeleteAll clears the ledger.
func (s *BoltStore) DeleteAll() error {
	return s.rewrite(func([]Receipt) []Receipt {
		return []Receipt{}
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
