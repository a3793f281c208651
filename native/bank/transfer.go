package bank

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"epochstake/crypto"
	"epochstake/native/internal/authority"
)

const maxAssetLength = 16

var (
	// ErrTransferFailed classifies every rejected balance movement. Callers
	// match it with errors.Is; the joined cause names the specific reason.
	ErrTransferFailed = errors.New("bank: transfer failed")

	ErrInvalidAsset        = errors.New("bank: invalid asset")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrAccountNotFound     = errors.New("bank: account not found")
	ErrAssetMismatch       = errors.New("bank: asset mismatch")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrUnauthorized        = errors.New("bank: unauthorized")
	ErrOverflow            = errors.New("bank: balance overflow")
	ErrSelfTransfer        = errors.New("bank: source and destination are the same account")
	errNilState            = errors.New("bank: state not configured")
)

// Account is an addressable balance of one asset.
type Account struct {
	Address crypto.Address
	Owner   crypto.Address
	Asset   string
	Amount  uint64
	// Program marks accounts owned by a derived authority. Only the
	// matching *authority.Program may debit them.
	Program bool
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// State is the storage surface the ledger mutates.
type State interface {
	BankAccountGet(addr crypto.Address) (*Account, bool, error)
	BankAccountPut(account *Account) error
}

// Authorizer identifies who approves a debit.
type Authorizer interface {
	Signer() crypto.Address
}

// UserSigner authorizes debits from accounts owned by a key-holding user.
// The caller's identity must already have been authenticated upstream.
type UserSigner crypto.Address

// Signer implements Authorizer.
func (s UserSigner) Signer() crypto.Address { return crypto.Address(s) }

// NormalizeAsset upper-cases and validates an asset ticker.
func NormalizeAsset(asset string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" || len(normalized) > maxAssetLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
	}
	for _, r := range normalized {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
		}
	}
	return normalized, nil
}

// AssociatedAddress returns the canonical balance address for owner and asset.
func AssociatedAddress(owner crypto.Address, asset string) crypto.Address {
	return crypto.DeriveAddress([]byte("balance"), owner[:], []byte(strings.ToUpper(strings.TrimSpace(asset))))
}

// Ledger moves units between accounts held in State. It performs no commit of
// its own: callers run it inside a state transaction.
type Ledger struct {
	state State
}

// NewLedger creates a ledger over the provided state.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// Account loads the account stored at addr.
func (l *Ledger) Account(addr crypto.Address) (*Account, bool, error) {
	if l == nil || l.state == nil {
		return nil, false, errNilState
	}
	return l.state.BankAccountGet(addr)
}

// OpenAccount ensures owner holds an associated account for asset. It
// returns the account and whether it was created by this call.
func (l *Ledger) OpenAccount(owner crypto.Address, asset string) (*Account, bool, error) {
	if l == nil || l.state == nil {
		return nil, false, errNilState
	}
	if owner.IsZero() {
		return nil, false, fmt.Errorf("bank: owner required")
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, false, err
	}
	return l.open(owner, normalized, false)
}

// OpenProgramAccount opens the associated account of a derived authority.
func (l *Ledger) OpenProgramAccount(program *authority.Program, asset string) (*Account, bool, error) {
	if l == nil || l.state == nil {
		return nil, false, errNilState
	}
	if !program.Controls(program.Signer()) {
		return nil, false, ErrUnauthorized
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, false, err
	}
	return l.open(program.Signer(), normalized, true)
}

func (l *Ledger) open(owner crypto.Address, asset string, program bool) (*Account, bool, error) {
	addr := AssociatedAddress(owner, asset)
	existing, ok, err := l.state.BankAccountGet(addr)
	if err != nil {
		return nil, false, err
	}
	if ok {
		if existing.Owner != owner || existing.Asset != asset || existing.Program != program {
			return nil, false, fmt.Errorf("bank: account %s exists with different definition", addr)
		}
		return existing, false, nil
	}
	account := &Account{Address: addr, Owner: owner, Asset: asset, Program: program}
	if err := l.state.BankAccountPut(account); err != nil {
		return nil, false, err
	}
	return account.Clone(), true, nil
}

// Mint credits amount to an existing account.
func (l *Ledger) Mint(to crypto.Address, amount uint64) (*Account, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	account, ok, err := l.state.BankAccountGet(to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, to)
	}
	sum, carry := bits.Add64(account.Amount, amount, 0)
	if carry != 0 {
		return nil, ErrOverflow
	}
	account.Amount = sum
	if err := l.state.BankAccountPut(account); err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// Transfer moves amount from one account to another of the same asset. The
// authorizer must control the source account. Every rejection wraps
// ErrTransferFailed.
func (l *Ledger) Transfer(from, to crypto.Address, amount uint64, auth Authorizer) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := l.transfer(from, to, amount, auth); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

func (l *Ledger) transfer(from, to crypto.Address, amount uint64, auth Authorizer) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	source, ok, err := l.state.BankAccountGet(from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: source %s", ErrAccountNotFound, from)
	}
	dest, ok, err := l.state.BankAccountGet(to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: destination %s", ErrAccountNotFound, to)
	}
	if source.Asset != dest.Asset {
		return fmt.Errorf("%w: %s -> %s", ErrAssetMismatch, source.Asset, dest.Asset)
	}
	if !authorizes(source, auth) {
		return ErrUnauthorized
	}
	if source.Amount < amount {
		return ErrInsufficientBalance
	}
	credited, carry := bits.Add64(dest.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	source.Amount -= amount
	dest.Amount = credited
	if err := l.state.BankAccountPut(source); err != nil {
		return err
	}
	return l.state.BankAccountPut(dest)
}

// authorizes accepts user signers for user accounts and only the program
// capability for program accounts. Any other type naming the owner is refused.
func authorizes(account *Account, auth Authorizer) bool {
	if account == nil || auth == nil {
		return false
	}
	program, isProgram := auth.(*authority.Program)
	if account.Program {
		return isProgram && program.Controls(account.Owner)
	}
	if isProgram {
		return false
	}
	signer, ok := auth.(UserSigner)
	return ok && crypto.Address(signer) == account.Owner
}
