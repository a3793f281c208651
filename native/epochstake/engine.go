package epochstake

import (
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"
	"unicode/utf8"

	"epochstake/core/events"
	"epochstake/crypto"
	"epochstake/native/bank"
	"epochstake/native/internal/authority"
)

// State is the transactional view the engine mutates. Records and pools are
// returned as copies; writes become visible only when the enclosing Store
// call commits.
type State interface {
	bank.State
	StakeRecordGet(owner crypto.Address) (*UserStakeRecord, bool, error)
	StakeRecordPut(owner crypto.Address, record *UserStakeRecord) error
	StakePoolGet() (*Pool, bool, error)
	StakePoolPut(pool *Pool) error
}

// Store serialises access to an owner's record and the pool. Update commits
// every write performed by fn, or none of them when fn returns an error.
// A zero owner locks only the pool.
type Store interface {
	Update(owner crypto.Address, fn func(State) error) error
	View(owner crypto.Address, fn func(State) error) error
}

const poolSeed = "staking_wallet"

// PoolAuthorityAddress returns the derived address that owns the vault.
func PoolAuthorityAddress() crypto.Address {
	return crypto.DeriveAddress([]byte(poolSeed))
}

// Engine implements the staking operations on top of a Store.
type Engine struct {
	store     Store
	emitter   events.Emitter
	logger    *slog.Logger
	nowFn     func() int64
	authority *authority.Program
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		nowFn:     func() int64 { return time.Now().Unix() },
		authority: authority.Derive([]byte(poolSeed)),
	}
}

// SetStore configures the state backend used by the engine.
func (e *Engine) SetStore(store Store) { e.store = store }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger configures the structured logger. Passing nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evts ...events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	for _, evt := range evts {
		if evt != nil {
			e.emitter.Emit(evt)
		}
	}
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	return nil
}

// InitializeUserRecord creates the empty stake record of owner.
func (e *Engine) InitializeUserRecord(owner crypto.Address) (*UserStakeRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, fmt.Errorf("epochstake: owner required")
	}
	now := e.now()
	record := NewUserStakeRecord(now)
	err := e.store.Update(owner, func(st State) error {
		_, ok, err := st.StakeRecordGet(owner)
		if err != nil {
			return err
		}
		if ok {
			return ErrRecordExists
		}
		return st.StakeRecordPut(owner, record)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("initialized stake record", slog.String("owner", owner.String()))
	e.emit(events.StakeUserInitialized{Owner: owner, Timestamp: now})
	return record.Clone(), nil
}

// InitializePool binds the pool singleton to asset and opens its vault.
func (e *Engine) InitializePool(asset string) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := bank.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var pool *Pool
	err = e.store.Update(crypto.Address{}, func(st State) error {
		_, ok, err := st.StakePoolGet()
		if err != nil {
			return err
		}
		if ok {
			return ErrPoolExists
		}
		vault, _, err := bank.NewLedger(st).OpenProgramAccount(e.authority, normalized)
		if err != nil {
			return err
		}
		pool = &Pool{Asset: normalized, Vault: vault.Address, Authority: e.authority.Signer(), CreatedAt: now}
		return st.StakePoolPut(pool)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("initialized staking pool", slog.String("asset", normalized), slog.String("vault", pool.Vault.String()))
	e.emit(events.StakePoolInitialized{Asset: normalized, Vault: pool.Vault, Timestamp: now})
	return pool.Clone(), nil
}

// CreateUserBalance opens owner's associated balance for the pool asset. It
// is idempotent and returns the balance address.
func (e *Engine) CreateUserBalance(owner crypto.Address) (crypto.Address, error) {
	if err := e.ready(); err != nil {
		return crypto.Address{}, err
	}
	var (
		account *bank.Account
		created bool
	)
	err := e.store.Update(owner, func(st State) error {
		pool, err := loadPool(st)
		if err != nil {
			return err
		}
		account, created, err = bank.NewLedger(st).OpenAccount(owner, pool.Asset)
		return err
	})
	if err != nil {
		return crypto.Address{}, err
	}
	if created {
		e.emit(events.StakeBalanceCreated{Owner: owner, Balance: account.Address, Asset: account.Asset})
	}
	return account.Address, nil
}

// Stake moves amount from owner's associated balance into the pool under
// epoch. Topping up a non-empty epoch restarts its lock clock.
func (e *Engine) Stake(owner crypto.Address, amount uint64, epoch uint8) (*UserStakeRecord, error) {
	return e.stake(owner, nil, amount, epoch)
}

// StakeFrom is Stake with an explicit source balance.
func (e *Engine) StakeFrom(owner, balance crypto.Address, amount uint64, epoch uint8) (*UserStakeRecord, error) {
	return e.stake(owner, &balance, amount, epoch)
}

func (e *Engine) stake(owner crypto.Address, balance *crypto.Address, amount uint64, epoch uint8) (*UserStakeRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	idx, err := epochIndex(epoch)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	now := e.now()
	var (
		record *UserStakeRecord
		pool   *Pool
		source crypto.Address
	)
	err = e.store.Update(owner, func(st State) error {
		var err error
		if pool, err = loadPool(st); err != nil {
			return err
		}
		if record, err = loadRecord(st, owner); err != nil {
			return err
		}
		source = resolveBalance(owner, pool, balance)
		ledger := bank.NewLedger(st)
		account, ok, err := ledger.Account(source)
		if err != nil {
			return err
		}
		if ok && account.Asset != pool.Asset {
			return fmt.Errorf("%w: %s", ErrInvalidMint, account.Asset)
		}
		total, carry := bits.Add64(record.StakedAmount[idx], amount, 0)
		if carry != 0 {
			return ErrNumericOverflow
		}
		if err := ledger.Transfer(source, pool.Vault, amount, bank.UserSigner(owner)); err != nil {
			return err
		}
		record.StakedAmount[idx] = total
		record.StakeStartTime[idx] = now
		return st.StakeRecordPut(owner, record)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("staked tokens",
		slog.String("owner", owner.String()),
		slog.String("name", record.DisplayName),
		slog.Int("epoch", int(epoch)),
		slog.Uint64("amount", amount),
		slog.Uint64("total", record.StakedAmount[idx]))
	e.emit(
		events.Transfer{Asset: pool.Asset, From: source, To: pool.Vault, Amount: amount},
		events.StakeStaked{Owner: owner, Epoch: epoch, Amount: amount, Total: record.StakedAmount[idx], StartTime: now},
	)
	return record.Clone(), nil
}

// Unstake withdraws the whole position of epoch plus its reward into owner's
// associated balance once the lock has elapsed.
func (e *Engine) Unstake(owner crypto.Address, epoch uint8) (UnstakeResult, error) {
	return e.unstake(owner, nil, epoch)
}

// UnstakeTo is Unstake with an explicit destination balance. The balance must
// be owned by owner.
func (e *Engine) UnstakeTo(owner, balance crypto.Address, epoch uint8) (UnstakeResult, error) {
	return e.unstake(owner, &balance, epoch)
}

func (e *Engine) unstake(owner crypto.Address, balance *crypto.Address, epoch uint8) (UnstakeResult, error) {
	if err := e.ready(); err != nil {
		return UnstakeResult{}, err
	}
	idx, err := epochIndex(epoch)
	if err != nil {
		return UnstakeResult{}, err
	}
	policy := epochPolicies[idx]
	now := e.now()
	var (
		result UnstakeResult
		pool   *Pool
		dest   crypto.Address
		name   string
	)
	err = e.store.Update(owner, func(st State) error {
		var err error
		if pool, err = loadPool(st); err != nil {
			return err
		}
		record, err := loadRecord(st, owner)
		if err != nil {
			return err
		}
		name = record.DisplayName
		principal := record.StakedAmount[idx]
		if principal == 0 {
			return ErrInsufficientStakedAmount
		}
		elapsed := now - record.StakeStartTime[idx]
		if elapsed < 0 {
			return fmt.Errorf("%w: %d", ErrNegativeElapsed, elapsed)
		}
		if elapsed < policy.LockSeconds {
			return fmt.Errorf("%w: %ds remaining", ErrStakingPeriodNotEnded, policy.LockSeconds-elapsed)
		}
		dest = resolveBalance(owner, pool, balance)
		ledger := bank.NewLedger(st)
		account, ok, err := ledger.Account(dest)
		if err != nil {
			return err
		}
		if !ok || account.Owner != owner {
			return ErrInvalidUserTokenAccount
		}
		if account.Asset != pool.Asset {
			return fmt.Errorf("%w: %s", ErrInvalidMint, account.Asset)
		}
		reward, err := ComputeReward(principal, epoch, elapsed)
		if err != nil {
			return err
		}
		payout, carry := bits.Add64(principal, reward, 0)
		if carry != 0 {
			return ErrNumericOverflow
		}
		if err := ledger.Transfer(pool.Vault, dest, payout, e.authority); err != nil {
			return err
		}
		record.StakedAmount[idx] = 0
		record.StakeStartTime[idx] = 0
		result = UnstakeResult{Principal: principal, Reward: reward, Elapsed: elapsed}
		return st.StakeRecordPut(owner, record)
	})
	if err != nil {
		return UnstakeResult{}, err
	}
	e.logger.Info("unstaked tokens",
		slog.String("owner", owner.String()),
		slog.String("name", name),
		slog.Int("epoch", int(epoch)),
		slog.Uint64("principal", result.Principal),
		slog.Uint64("reward", result.Reward),
		slog.Int64("elapsed", result.Elapsed))
	e.emit(
		events.Transfer{Asset: pool.Asset, From: pool.Vault, To: dest, Amount: result.Principal + result.Reward},
		events.StakeUnstaked{Owner: owner, Epoch: epoch, Principal: result.Principal, Reward: result.Reward, Elapsed: result.Elapsed, Timestamp: now},
	)
	return result, nil
}

// StakedAmount returns the principal owner holds in epoch.
func (e *Engine) StakedAmount(owner crypto.Address, epoch uint8) (uint64, error) {
	idx, err := epochIndex(epoch)
	if err != nil {
		return 0, err
	}
	record, err := e.Record(owner)
	if err != nil {
		return 0, err
	}
	return record.StakedAmount[idx], nil
}

// Record returns a copy of owner's stake record.
func (e *Engine) Record(owner crypto.Address) (*UserStakeRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var record *UserStakeRecord
	err := e.store.View(owner, func(st State) error {
		var err error
		record, err = loadRecord(st, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Pool returns the pool singleton.
func (e *Engine) Pool() (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var pool *Pool
	err := e.store.View(crypto.Address{}, func(st State) error {
		var err error
		pool, err = loadPool(st)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Balance returns the bank account stored at addr.
func (e *Engine) Balance(addr crypto.Address) (*bank.Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var account *bank.Account
	err := e.store.View(crypto.Address{}, func(st State) error {
		acc, ok, err := bank.NewLedger(st).Account(addr)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", bank.ErrAccountNotFound, addr)
		}
		account = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// PreviewReward reports what unstaking epoch would pay right now without
// changing any state. A locked position still reports its accrued reward.
func (e *Engine) PreviewReward(owner crypto.Address, epoch uint8) (RewardPreview, error) {
	idx, err := epochIndex(epoch)
	if err != nil {
		return RewardPreview{}, err
	}
	record, err := e.Record(owner)
	if err != nil {
		return RewardPreview{}, err
	}
	now := e.now()
	preview := RewardPreview{Epoch: epoch, Principal: record.StakedAmount[idx], Now: now}
	if preview.Principal == 0 {
		return preview, nil
	}
	start := record.StakeStartTime[idx]
	preview.Elapsed = now - start
	preview.UnlockAt = start + epochPolicies[idx].LockSeconds
	preview.Unlocked = preview.Elapsed >= epochPolicies[idx].LockSeconds
	if preview.Elapsed < 0 {
		return preview, nil
	}
	preview.Reward, err = ComputeReward(preview.Principal, epoch, preview.Elapsed)
	if err != nil {
		return RewardPreview{}, err
	}
	return preview, nil
}

// SetDisplayName replaces the free-form label of owner's record.
func (e *Engine) SetDisplayName(owner crypto.Address, name string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(name) > MaxDisplayNameBytes {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	if !utf8.ValidString(name) {
		return ErrInvalidName
	}
	err := e.store.Update(owner, func(st State) error {
		record, err := loadRecord(st, owner)
		if err != nil {
			return err
		}
		record.DisplayName = name
		return st.StakeRecordPut(owner, record)
	})
	if err != nil {
		return err
	}
	e.emit(events.StakeNameUpdated{Owner: owner, Name: name})
	return nil
}

// Mint credits the vault or any existing balance. It is a faucet for local
// networks and is gated by the caller.
func (e *Engine) Mint(to crypto.Address, amount uint64) (*bank.Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var account *bank.Account
	err := e.store.Update(crypto.Address{}, func(st State) error {
		var err error
		account, err = bank.NewLedger(st).Mint(to, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.Mint{Asset: account.Asset, To: to, Amount: amount})
	return account, nil
}

func loadPool(st State) (*Pool, error) {
	pool, ok, err := st.StakePoolGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotInitialized
	}
	return pool, nil
}

func loadRecord(st State, owner crypto.Address) (*UserStakeRecord, error) {
	record, ok, err := st.StakeRecordGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

func resolveBalance(owner crypto.Address, pool *Pool, explicit *crypto.Address) crypto.Address {
	if explicit != nil {
		return *explicit
	}
	return bank.AssociatedAddress(owner, pool.Asset)
}

// IsClientError reports whether err was caused by the request rather than
// the backend.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidEpoch, ErrInvalidMint, ErrInvalidUserTokenAccount, ErrInsufficientStakedAmount,
		ErrStakingPeriodNotEnded, ErrNumericOverflow, ErrTransferFailed, ErrZeroAmount,
		ErrNegativeElapsed, ErrRecordExists, ErrRecordNotFound, ErrPoolExists,
		ErrPoolNotInitialized, ErrNameTooLong, ErrInvalidName,
		bank.ErrInvalidAsset, bank.ErrInvalidAmount, bank.ErrAccountNotFound, bank.ErrOverflow, bank.ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
