package history

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"epochstake/core/events"
)

const (
	KindStake   = "stake"
	KindUnstake = "unstake"

	defaultLimit = 50
	maxLimit     = 500
	writeTimeout = 5 * time.Second
)

// Receipt is the durable trace of one committed stake or unstake. Amounts are
// decimal strings because unsigned 64-bit values do not fit SQL integers.
type Receipt struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Owner     string    `gorm:"index:idx_receipt_owner_ts" json:"owner"`
	Kind      string    `gorm:"index" json:"kind"`
	Epoch     uint8     `json:"epoch"`
	Amount    string    `gorm:"not null" json:"amount"`
	Reward    string    `gorm:"not null;default:0" json:"reward"`
	Total     string    `json:"total,omitempty"`
	Elapsed   int64     `json:"elapsed,omitempty"`
	Timestamp int64     `gorm:"index:idx_receipt_owner_ts" json:"timestamp"`
	Hash      string    `gorm:"uniqueIndex" json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
}

// Digest returns the blake3 fingerprint over the receipt's identity and
// economic fields.
func (r *Receipt) Digest() string {
	h := blake3.New(32, nil)
	_, _ = h.Write(r.ID[:])
	for _, field := range []string{r.Owner, r.Kind, r.Amount, r.Reward, r.Total} {
		var size [2]byte
		binary.BigEndian.PutUint16(size[:], uint16(len(field)))
		_, _ = h.Write(size[:])
		_, _ = h.Write([]byte(field))
	}
	var tail [17]byte
	tail[0] = r.Epoch
	binary.BigEndian.PutUint64(tail[1:9], uint64(r.Elapsed))
	binary.BigEndian.PutUint64(tail[9:], uint64(r.Timestamp))
	_, _ = h.Write(tail[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the stored hash matches the receipt contents.
func (r *Receipt) Verify() bool {
	return r.Hash != "" && r.Hash == r.Digest()
}

// Open connects to the database named by dsn. Postgres URLs and keyword DSNs
// select the postgres driver, an empty DSN an isolated in-memory SQLite
// database, and anything else a SQLite file.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch {
	case dsn == "":
		return gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), cfg)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return gorm.Open(sqlite.Open(dsn), cfg)
	}
}

// AutoMigrate creates or updates the receipt table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Receipt{})
}

// Store persists receipts and serves per-owner history.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore migrates db and returns a store over it.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("history: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db, logger: slog.Default()}, nil
}

// SetLogger overrides the logger used for write failures.
func (s *Store) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Emit implements events.Emitter, recording stake and unstake events.
// Persistence failures are logged; the ledger state is authoritative.
func (s *Store) Emit(evt events.Event) {
	var receipt *Receipt
	switch e := evt.(type) {
	case events.StakeStaked:
		receipt = &Receipt{
			Owner:     e.Owner.String(),
			Kind:      KindStake,
			Epoch:     e.Epoch,
			Amount:    strconv.FormatUint(e.Amount, 10),
			Reward:    "0",
			Total:     strconv.FormatUint(e.Total, 10),
			Timestamp: e.StartTime,
		}
	case events.StakeUnstaked:
		receipt = &Receipt{
			Owner:     e.Owner.String(),
			Kind:      KindUnstake,
			Epoch:     e.Epoch,
			Amount:    strconv.FormatUint(e.Principal, 10),
			Reward:    strconv.FormatUint(e.Reward, 10),
			Elapsed:   e.Elapsed,
			Timestamp: e.Timestamp,
		}
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.Record(ctx, receipt); err != nil {
		s.logger.Error("failed to record receipt",
			slog.String("owner", receipt.Owner),
			slog.String("kind", receipt.Kind),
			slog.Any("error", err))
	}
}

// Record assigns an ID and hash to receipt and inserts it.
func (s *Store) Record(ctx context.Context, receipt *Receipt) error {
	if s == nil || s.db == nil {
		return errors.New("history: store not configured")
	}
	if receipt == nil {
		return errors.New("history: nil receipt")
	}
	if receipt.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return err
		}
		receipt.ID = id
	}
	receipt.Hash = receipt.Digest()
	return s.db.WithContext(ctx).Create(receipt).Error
}

// List returns owner's receipts newest first. A non-positive limit selects
// the default page size.
func (s *Store) List(ctx context.Context, owner string, limit int) ([]Receipt, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store not configured")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var receipts []Receipt
	err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("timestamp DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
