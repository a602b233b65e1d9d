package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"flightsurety/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("state: transaction closed")

// KV is the key/value surface native engines persist through. Values are RLP
// encoded; keys are hashed with keccak256 before they reach the database.
type KV interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
}

type backend interface {
	get(key []byte) ([]byte, bool, error)
	put(key, value []byte) error
	del(key []byte) error
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

type kv struct {
	b backend
}

// KVPut stores the RLP encoding of value under key.
func (k kv) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return k.b.put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (k kv) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := k.b.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key. Missing keys are ignored.
func (k kv) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return k.b.del(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (k kv) KVAppend(key []byte, value []byte) error {
	list, err := k.KVGetList(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return k.KVPut(key, list)
}

// KVGetList returns the byte slice list stored under key, or nil.
func (k kv) KVGetList(key []byte) ([][]byte, error) {
	var list [][]byte
	if _, err := k.KVGet(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Manager reads and writes committed state. Mutating calls should go through a
// Tx obtained from Begin so a failure leaves committed state untouched.
type Manager struct {
	kv
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	m := &Manager{db: db}
	m.kv = kv{b: dbBackend{db: db}}
	return m
}

// Database exposes the backing store.
func (m *Manager) Database() storage.Database { return m.db }

// Begin opens a buffered transaction over the committed state.
func (m *Manager) Begin() *Tx {
	tx := &Tx{
		manager: m,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
	tx.kv = kv{b: tx}
	return tx
}

type dbBackend struct {
	db storage.Database
}

func (d dbBackend) get(key []byte) ([]byte, bool, error) {
	value, err := d.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (d dbBackend) put(key, value []byte) error { return d.db.Put(key, value) }

func (d dbBackend) del(key []byte) error { return d.db.Delete(key) }

// Tx buffers writes on top of the committed state. Reads observe the buffered
// writes first. Nothing reaches the database until Commit.
//
// Tx is not safe for concurrent use.
type Tx struct {
	kv
	manager *Manager
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

func (t *Tx) get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxClosed
	}
	k := string(key)
	if _, gone := t.deletes[k]; gone {
		return nil, false, nil
	}
	if value, ok := t.writes[k]; ok {
		return append([]byte(nil), value...), true, nil
	}
	return dbBackend{db: t.manager.db}.get(key)
}

func (t *Tx) put(key, value []byte) error {
	if t.closed {
		return ErrTxClosed
	}
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

func (t *Tx) del(key []byte) error {
	if t.closed {
		return ErrTxClosed
	}
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

// Dirty reports the number of buffered writes and deletes.
func (t *Tx) Dirty() int { return len(t.writes) + len(t.deletes) }

// Commit applies the buffered writes atomically and closes the transaction.
func (t *Tx) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	if t.Dirty() == 0 {
		return nil
	}
	batch := t.manager.db.NewBatch()
	for _, k := range sortedKeys(t.writes) {
		batch.Put([]byte(k), t.writes[k])
	}
	deletes := make([]string, 0, len(t.deletes))
	for k := range t.deletes {
		deletes = append(deletes, k)
	}
	sort.Strings(deletes)
	for _, k := range deletes {
		batch.Delete([]byte(k))
	}
	return batch.Write()
}

// Discard drops the buffered writes. Calling Discard after Commit is a no-op.
func (t *Tx) Discard() {
	t.closed = true
	t.writes = nil
	t.deletes = nil
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
