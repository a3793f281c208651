package state

import (
	"epochstake/crypto"
	"epochstake/native/bank"
	"epochstake/native/epochstake"
)

// BankAccountGet implements bank.State.
func (t *Txn) BankAccountGet(addr crypto.Address) (*bank.Account, bool, error) {
	var stored storedAccount
	ok, err := t.KVGet(BankAccountKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toAccount(), true, nil
}

// BankAccountPut implements bank.State.
func (t *Txn) BankAccountPut(account *bank.Account) error {
	return t.KVPut(BankAccountKey(account.Address), newStoredAccount(account))
}

// StakeRecordGet implements epochstake.State.
func (t *Txn) StakeRecordGet(owner crypto.Address) (*epochstake.UserStakeRecord, bool, error) {
	var stored storedStakeRecord
	ok, err := t.KVGet(StakeRecordKey(owner), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := stored.toRecord()
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// StakeRecordPut implements epochstake.State.
func (t *Txn) StakeRecordPut(owner crypto.Address, record *epochstake.UserStakeRecord) error {
	stored, err := newStoredStakeRecord(record)
	if err != nil {
		return err
	}
	return t.KVPut(StakeRecordKey(owner), stored)
}

// StakePoolGet implements epochstake.State.
func (t *Txn) StakePoolGet() (*epochstake.Pool, bool, error) {
	var stored storedPool
	ok, err := t.KVGet(stakePoolKeyBytes, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toPool(), true, nil
}

// StakePoolPut implements epochstake.State.
func (t *Txn) StakePoolPut(pool *epochstake.Pool) error {
	stored, err := newStoredPool(pool)
	if err != nil {
		return err
	}
	return t.KVPut(stakePoolKeyBytes, stored)
}

// StakingStore adapts a Manager to the engine's Store. Writes always take
// the pool lock because every stake and unstake moves the vault balance;
// the owner's record lock is added when an owner is named.
type StakingStore struct {
	manager *Manager
}

// NewStakingStore wraps manager.
func NewStakingStore(manager *Manager) *StakingStore {
	return &StakingStore{manager: manager}
}

// Update implements epochstake.Store.
func (s *StakingStore) Update(owner crypto.Address, fn func(epochstake.State) error) error {
	keys := [][]byte{StakePoolKey()}
	if !owner.IsZero() {
		keys = append(keys, StakeRecordKey(owner))
	}
	return s.manager.Update(keys, func(txn *Txn) error { return fn(txn) })
}

// View implements epochstake.Store. Readers of a single record only wait on
// that owner's writers.
func (s *StakingStore) View(owner crypto.Address, fn func(epochstake.State) error) error {
	key := StakePoolKey()
	if !owner.IsZero() {
		key = StakeRecordKey(owner)
	}
	return s.manager.View([][]byte{key}, func(txn *Txn) error { return fn(txn) })
}
