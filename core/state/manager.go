package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"epochstake/storage"
)

var errNilManager = errors.New("state: manager unavailable")

// Manager runs transactions over a key/value database. Writes made inside a
// transaction are staged in memory and committed as one batch; a transaction
// that returns an error leaves the database untouched.
type Manager struct {
	db    storage.Database
	locks *keyLocks
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, locks: newKeyLocks()}
}

// Update runs fn while holding the locks for keys and commits its writes when
// fn returns nil.
func (m *Manager) Update(keys [][]byte, fn func(*Txn) error) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	release := m.locks.acquire(keys)
	defer release()

	txn := newTxn(m.db, false)
	if err := fn(txn); err != nil {
		return err
	}
	return txn.commit()
}

// View runs fn under the locks for keys. The transaction rejects writes.
func (m *Manager) View(keys [][]byte, fn func(*Txn) error) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	release := m.locks.acquire(keys)
	defer release()
	return fn(newTxn(m.db, true))
}

// Txn is a read-your-writes overlay on top of the database.
type Txn struct {
	db       storage.Database
	readOnly bool
	writes   map[string][]byte
	order    []string
}

func newTxn(db storage.Database, readOnly bool) *Txn {
	return &Txn{db: db, readOnly: readOnly, writes: make(map[string][]byte)}
}

func (t *Txn) get(hashed []byte) ([]byte, error) {
	if value, ok := t.writes[string(hashed)]; ok {
		return value, nil
	}
	data, err := t.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (t *Txn) stage(hashed []byte, value []byte) error {
	if t.readOnly {
		return fmt.Errorf("state: write in read-only transaction")
	}
	name := string(hashed)
	if _, ok := t.writes[name]; !ok {
		t.order = append(t.order, name)
	}
	t.writes[name] = value
	return nil
}

func (t *Txn) commit() error {
	if len(t.order) == 0 {
		return nil
	}
	batch := t.db.NewBatch()
	for _, name := range t.order {
		value := t.writes[name]
		if value == nil {
			batch.Delete([]byte(name))
			continue
		}
		batch.Put([]byte(name), value)
	}
	return batch.Write()
}

// KVPut stores value under key using RLP encoding. The key is hashed with
// keccak256 before it reaches the database.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return t.stage(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := t.get(kvKey(key))
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

// KVDelete removes key.
func (t *Txn) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return t.stage(kvKey(key), nil)
}
