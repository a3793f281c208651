package events

import (
	"strconv"

	"epochstake/core/types"
	"epochstake/crypto"
)

const (
	// TypeTransfer is emitted for every committed balance movement.
	TypeTransfer = "bank.transfer"
	// TypeMint is emitted when the faucet credits a balance.
	TypeMint = "bank.mint"
)

type Transfer struct {
	Asset  string
	From   crypto.Address
	To     crypto.Address
	Amount uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = e.From.String()
	attrs["to"] = e.To.String()
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type Mint struct {
	Asset  string
	To     crypto.Address
	Amount uint64
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	return &types.Event{Type: TypeMint, Attributes: map[string]string{
		"asset":  normalizeAsset(e.Asset),
		"to":     e.To.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}}
}
