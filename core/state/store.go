package state

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"p2pescrow/storage"
)

var (
	// ErrKeyExists is returned by KVCreate when the key is already populated.
	ErrKeyExists = errors.New("kv: key already exists")
	// ErrReadOnly is returned when a write is attempted inside View.
	ErrReadOnly = errors.New("kv: transaction is read-only")

	errNilStore = errors.New("state: store not configured")
)

// Store serialises access to the backing database. Every Update runs against a
// private overlay that is committed as a single batch when the callback
// succeeds and discarded otherwise.
type Store struct {
	mu sync.RWMutex
	db storage.Database
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Update executes fn with exclusive write access. Writes performed through the
// transaction are only persisted when fn returns nil.
func (s *Store) Update(fn func(tx *Tx) error) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := newTx(s.db, false)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View executes fn against a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTx(s.db, true))
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx is a buffered view over the database. It is not safe for use outside the
// callback that received it.
type Tx struct {
	db       storage.Database
	readOnly bool
	writes   map[string]pendingWrite
	order    []string
}

func newTx(db storage.Database, readOnly bool) *Tx {
	return &Tx{db: db, readOnly: readOnly, writes: make(map[string]pendingWrite)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (tx *Tx) get(hashed []byte) ([]byte, error) {
	if pending, ok := tx.writes[string(hashed)]; ok {
		if pending.deleted {
			return nil, nil
		}
		return pending.value, nil
	}
	data, err := tx.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (tx *Tx) set(hashed []byte, value []byte, deleted bool) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	k := string(hashed)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = pendingWrite{value: value, deleted: deleted}
	return nil
}

func (tx *Tx) commit() error {
	if len(tx.order) == 0 {
		return nil
	}
	batch := tx.db.NewBatch()
	for _, k := range tx.order {
		pending := tx.writes[k]
		if pending.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), pending.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// KVPut stores the RLP encoding of value under the supplied key.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return tx.set(kvKey(key), encoded, false)
}

// KVCreate behaves like KVPut but fails with ErrKeyExists when the key is
// already populated.
func (tx *Tx) KVCreate(key []byte, value interface{}) error {
	exists, err := tx.KVGet(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return ErrKeyExists
	}
	return tx.KVPut(key, value)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := tx.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
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

// KVDelete removes the supplied key.
func (tx *Tx) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return tx.set(kvKey(key), nil, true)
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (tx *Tx) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if _, err := tx.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return tx.KVPut(key, list)
}

// KVGetList decodes the byte slice list stored under key. Missing keys yield
// an empty list.
func (tx *Tx) KVGetList(key []byte) ([][]byte, error) {
	var list [][]byte
	if _, err := tx.KVGet(key, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = [][]byte{}
	}
	return list, nil
}
