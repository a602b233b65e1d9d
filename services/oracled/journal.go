package oracled

import (
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSettled = []byte("settled")

// Journal remembers request keys that stopped accepting responses so agents
// do not keep submitting to them.
type Journal interface {
	Settled(key [32]byte) (bool, error)
	MarkSettled(key [32]byte, reason string) error
	Close() error
}

// BoltJournal persists settled keys in a bbolt file so restarts keep them.
type BoltJournal struct {
	db *bolt.DB
}

// OpenBoltJournal opens (and migrates) the journal at path.
func OpenBoltJournal(path string) (*BoltJournal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettled)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltJournal{db: db}, nil
}

func (j *BoltJournal) Settled(key [32]byte) (bool, error) {
	var found bool
	err := j.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketSettled).Get(key[:]) != nil
		return nil
	})
	return found, err
}

func (j *BoltJournal) MarkSettled(key [32]byte, reason string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettled).Put(key[:], []byte(reason))
	})
}

// Close releases the underlying Bolt database handle.
func (j *BoltJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

type memJournal struct {
	mu      sync.RWMutex
	settled map[[32]byte]string
}

// NewMemJournal returns a journal that forgets everything on restart.
func NewMemJournal() Journal {
	return &memJournal{settled: make(map[[32]byte]string)}
}

func (j *memJournal) Settled(key [32]byte) (bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	_, ok := j.settled[key]
	return ok, nil
}

func (j *memJournal) MarkSettled(key [32]byte, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.settled[key] = reason
	return nil
}

func (j *memJournal) Close() error { return nil }
