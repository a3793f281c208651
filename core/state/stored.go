package state

import (
	"fmt"

	"epochstake/crypto"
	"epochstake/native/bank"
	"epochstake/native/epochstake"
)

// rlp has no signed integers, so timestamps are persisted as uint64. Negative
// values never reach storage.

type storedStakeRecord struct {
	DisplayName          string
	FirstInteractionTime uint64
	StakedAmount         []uint64
	StakeStartTime       []uint64
}

func newStoredStakeRecord(rec *epochstake.UserStakeRecord) (*storedStakeRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("state: nil stake record")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.FirstInteractionTime < 0 {
		return nil, fmt.Errorf("state: negative first interaction time")
	}
	stored := &storedStakeRecord{
		DisplayName:          rec.DisplayName,
		FirstInteractionTime: uint64(rec.FirstInteractionTime),
		StakedAmount:         make([]uint64, epochstake.EpochCount),
		StakeStartTime:       make([]uint64, epochstake.EpochCount),
	}
	for i := 0; i < epochstake.EpochCount; i++ {
		stored.StakedAmount[i] = rec.StakedAmount[i]
		stored.StakeStartTime[i] = uint64(rec.StakeStartTime[i])
	}
	return stored, nil
}

func (s *storedStakeRecord) toRecord() (*epochstake.UserStakeRecord, error) {
	if len(s.StakedAmount) != epochstake.EpochCount || len(s.StakeStartTime) != epochstake.EpochCount {
		return nil, fmt.Errorf("state: stake record has %d/%d epoch slots", len(s.StakedAmount), len(s.StakeStartTime))
	}
	rec := &epochstake.UserStakeRecord{
		DisplayName:          s.DisplayName,
		FirstInteractionTime: int64(s.FirstInteractionTime),
	}
	for i := 0; i < epochstake.EpochCount; i++ {
		rec.StakedAmount[i] = s.StakedAmount[i]
		rec.StakeStartTime[i] = int64(s.StakeStartTime[i])
	}
	return rec, nil
}

type storedPool struct {
	Asset     string
	Vault     []byte
	Authority []byte
	CreatedAt uint64
}

func newStoredPool(pool *epochstake.Pool) (*storedPool, error) {
	if pool == nil {
		return nil, fmt.Errorf("state: nil pool")
	}
	if pool.CreatedAt < 0 {
		return nil, fmt.Errorf("state: negative pool creation time")
	}
	return &storedPool{
		Asset:     pool.Asset,
		Vault:     pool.Vault.Bytes(),
		Authority: pool.Authority.Bytes(),
		CreatedAt: uint64(pool.CreatedAt),
	}, nil
}

func (s *storedPool) toPool() *epochstake.Pool {
	return &epochstake.Pool{
		Asset:     s.Asset,
		Vault:     crypto.BytesToAddress(s.Vault),
		Authority: crypto.BytesToAddress(s.Authority),
		CreatedAt: int64(s.CreatedAt),
	}
}

type storedAccount struct {
	Address []byte
	Owner   []byte
	Asset   string
	Amount  uint64
	Program bool
}

func newStoredAccount(acc *bank.Account) *storedAccount {
	return &storedAccount{
		Address: acc.Address.Bytes(),
		Owner:   acc.Owner.Bytes(),
		Asset:   acc.Asset,
		Amount:  acc.Amount,
		Program: acc.Program,
	}
}

func (s *storedAccount) toAccount() *bank.Account {
	return &bank.Account{
		Address: crypto.BytesToAddress(s.Address),
		Owner:   crypto.BytesToAddress(s.Owner),
		Asset:   s.Asset,
		Amount:  s.Amount,
		Program: s.Program,
	}
}
