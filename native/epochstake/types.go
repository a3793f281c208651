package epochstake

import (
	"fmt"

	"epochstake/crypto"
)

// MaxDisplayNameBytes bounds the free-form label kept on a record.
const MaxDisplayNameBytes = 32

// UserStakeRecord tracks one owner's stake per epoch, indexed by epoch-1.
// An empty slot always has a zero start time.
type UserStakeRecord struct {
	DisplayName          string             `json:"displayName"`
	FirstInteractionTime int64              `json:"firstInteractionTime"`
	StakedAmount         [EpochCount]uint64 `json:"stakedAmount"`
	StakeStartTime       [EpochCount]int64  `json:"stakeStartTime"`
}

// NewUserStakeRecord returns an empty record first seen at now.
func NewUserStakeRecord(now int64) *UserStakeRecord {
	return &UserStakeRecord{FirstInteractionTime: now}
}

// Clone returns a copy of the record.
func (r *UserStakeRecord) Clone() *UserStakeRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Validate checks the amount/start-time pairing of every epoch slot.
func (r *UserStakeRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("epochstake: nil record")
	}
	if len(r.DisplayName) > MaxDisplayNameBytes {
		return ErrNameTooLong
	}
	for i := 0; i < EpochCount; i++ {
		if r.StakedAmount[i] == 0 && r.StakeStartTime[i] != 0 {
			return fmt.Errorf("epochstake: empty epoch %d has start time %d", i+1, r.StakeStartTime[i])
		}
		if r.StakeStartTime[i] < 0 {
			return fmt.Errorf("epochstake: epoch %d has negative start time", i+1)
		}
	}
	return nil
}

// Pool is the custodial pool singleton. Its balance lives in the bank under
// Vault, owned by the derived Authority.
type Pool struct {
	Asset     string         `json:"asset"`
	Vault     crypto.Address `json:"vault"`
	Authority crypto.Address `json:"authority"`
	CreatedAt int64          `json:"createdAt"`
}

// Clone returns a copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// UnstakeResult reports a completed withdrawal.
type UnstakeResult struct {
	Principal uint64 `json:"principal"`
	Reward    uint64 `json:"reward"`
	Elapsed   int64  `json:"elapsed"`
}

// RewardPreview describes what an unstake at Now would pay.
type RewardPreview struct {
	Epoch     uint8  `json:"epoch"`
	Principal uint64 `json:"principal"`
	Reward    uint64 `json:"reward"`
	Elapsed   int64  `json:"elapsed"`
	UnlockAt  int64  `json:"unlockAt"`
	Unlocked  bool   `json:"unlocked"`
	Now       int64  `json:"now"`
}
