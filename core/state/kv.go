package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"unigate/storage"
)

// Manager provides a typed key-value view over the raw database. Values are
// RLP encoded so that records survive process restarts with a stable layout.
type Manager struct {
	db storage.Database
}

// NewManager constructs a manager bound to the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state manager not initialised")
	}
	ok, err := m.db.Has(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	raw, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value and stores it under key, replacing any prior value.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, encoded)
}

// KVAppend appends the raw entry to the list stored under key, creating the
// list when absent.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager not initialised")
	}
	var list [][]byte
	ok, err := m.KVGet(key, &list)
	if err != nil {
		return err
	}
	if !ok {
		list = [][]byte{}
	}
	list = append(list, value)
	return m.KVPut(key, list)
}

// KVGetList decodes the list stored under key into out. Missing keys yield an
// empty list rather than an error.
func (m *Manager) KVGetList(key []byte, out *[][]byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager not initialised")
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		*out = [][]byte{}
	}
	return nil
}
