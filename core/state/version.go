package state

import (
	"errors"
	"fmt"
)

// StateVersion identifies the on-disk schema layout. Increment it whenever
// a stored structure changes incompatibly.
const StateVersion uint32 = 1

// ErrStateVersionMismatch indicates the stored schema version does not match
// the version supported by the current binary.
var ErrStateVersionMismatch = errors.New("state: schema version mismatch")

// StateVersion returns the stored schema version and whether it was present.
func (m *Manager) StateVersion() (uint32, bool, error) {
	var (
		stored uint64
		ok     bool
	)
	err := m.View([][]byte{stateVersionKey}, func(txn *Txn) error {
		var err error
		ok, err = txn.KVGet(stateVersionKey, &stored)
		return err
	})
	if err != nil || !ok {
		return 0, ok, err
	}
	return uint32(stored), true, nil
}

// EnsureStateVersion stamps a fresh database with StateVersion and rejects a
// database written by an incompatible binary.
func (m *Manager) EnsureStateVersion() error {
	return m.Update([][]byte{stateVersionKey}, func(txn *Txn) error {
		var stored uint64
		ok, err := txn.KVGet(stateVersionKey, &stored)
		if err != nil {
			return err
		}
		if !ok {
			return txn.KVPut(stateVersionKey, uint64(StateVersion))
		}
		if uint32(stored) != StateVersion {
			return fmt.Errorf("%w: stored %d, expected %d", ErrStateVersionMismatch, stored, StateVersion)
		}
		return nil
	})
}
