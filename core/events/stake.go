package events

import (
	"strconv"

	"epochstake/core/types"
	"epochstake/crypto"
)

const (
	// TypeStakeUserInitialized is emitted once per owner when the stake record is created.
	TypeStakeUserInitialized = "epochstake.user_initialized"
	// TypeStakePoolInitialized is emitted when the custodial pool is bound to its asset.
	TypeStakePoolInitialized = "epochstake.pool_initialized"
	// TypeStakeBalanceCreated is emitted when an owner's associated balance is opened.
	TypeStakeBalanceCreated = "epochstake.balance_created"
	// TypeStakeStaked is emitted after a stake commits.
	TypeStakeStaked = "epochstake.staked"
	// TypeStakeUnstaked is emitted after principal and reward are paid out.
	TypeStakeUnstaked = "epochstake.unstaked"
	// TypeStakeNameUpdated is emitted when an owner changes the display name.
	TypeStakeNameUpdated = "epochstake.name_updated"
)

// StakeUserInitialized records the creation of an owner's stake record.
type StakeUserInitialized struct {
	Owner     crypto.Address
	Timestamp int64
}

// EventType satisfies the Event interface.
func (StakeUserInitialized) EventType() string { return TypeStakeUserInitialized }

// Event converts the structured payload into a broadcastable event.
func (e StakeUserInitialized) Event() *types.Event {
	return &types.Event{Type: TypeStakeUserInitialized, Attributes: map[string]string{
		"owner":     e.Owner.String(),
		"timestamp": intToString(e.Timestamp),
	}}
}

// StakePoolInitialized records the custodial pool binding.
type StakePoolInitialized struct {
	Asset     string
	Vault     crypto.Address
	Timestamp int64
}

// EventType satisfies the Event interface.
func (StakePoolInitialized) EventType() string { return TypeStakePoolInitialized }

// Event converts the structured payload into a broadcastable event.
func (e StakePoolInitialized) Event() *types.Event {
	return &types.Event{Type: TypeStakePoolInitialized, Attributes: map[string]string{
		"asset":     normalizeAsset(e.Asset),
		"vault":     e.Vault.String(),
		"timestamp": intToString(e.Timestamp),
	}}
}

// StakeBalanceCreated records an associated balance opened for an owner.
type StakeBalanceCreated struct {
	Owner   crypto.Address
	Balance crypto.Address
	Asset   string
}

// EventType satisfies the Event interface.
func (StakeBalanceCreated) EventType() string { return TypeStakeBalanceCreated }

// Event converts the structured payload into a broadcastable event.
func (e StakeBalanceCreated) Event() *types.Event {
	return &types.Event{Type: TypeStakeBalanceCreated, Attributes: map[string]string{
		"owner":   e.Owner.String(),
		"balance": e.Balance.String(),
		"asset":   normalizeAsset(e.Asset),
	}}
}

// StakeStaked captures a committed stake into one epoch bucket.
type StakeStaked struct {
	Owner     crypto.Address
	Epoch     uint8
	Amount    uint64
	Total     uint64
	StartTime int64
}

// EventType satisfies the Event interface.
func (StakeStaked) EventType() string { return TypeStakeStaked }

// Event converts the structured payload into a broadcastable event.
func (e StakeStaked) Event() *types.Event {
	return &types.Event{Type: TypeStakeStaked, Attributes: map[string]string{
		"owner":     e.Owner.String(),
		"epoch":     strconv.FormatUint(uint64(e.Epoch), 10),
		"amount":    strconv.FormatUint(e.Amount, 10),
		"total":     strconv.FormatUint(e.Total, 10),
		"startTime": intToString(e.StartTime),
	}}
}

// StakeUnstaked captures a payout of principal and reward.
type StakeUnstaked struct {
	Owner     crypto.Address
	Epoch     uint8
	Principal uint64
	Reward    uint64
	Elapsed   int64
	Timestamp int64
}

// EventType satisfies the Event interface.
func (StakeUnstaked) EventType() string { return TypeStakeUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e StakeUnstaked) Event() *types.Event {
	return &types.Event{Type: TypeStakeUnstaked, Attributes: map[string]string{
		"owner":     e.Owner.String(),
		"epoch":     strconv.FormatUint(uint64(e.Epoch), 10),
		"principal": strconv.FormatUint(e.Principal, 10),
		"reward":    strconv.FormatUint(e.Reward, 10),
		"elapsed":   intToString(e.Elapsed),
		"timestamp": intToString(e.Timestamp),
	}}
}

// StakeNameUpdated records a display name change.
type StakeNameUpdated struct {
	Owner crypto.Address
	Name  string
}

// EventType satisfies the Event interface.
func (StakeNameUpdated) EventType() string { return TypeStakeNameUpdated }

// Event converts the structured payload into a broadcastable event.
func (e StakeNameUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStakeNameUpdated, Attributes: map[string]string{
		"owner": e.Owner.String(),
		"name":  e.Name,
	}}
}
