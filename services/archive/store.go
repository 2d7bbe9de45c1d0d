package archive

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"revchain/core"
)

// ErrChainBroken is returned by Verify when a stored digest does not match
// the recomputed one.
var ErrChainBroken = errors.New("archive: digest chain broken")

// EventRecord is one committed ledger event. Digest chains every row to its
// predecessor so edits to stored history are detectable.
type EventRecord struct {
	Position     uint64    `gorm:"primaryKey;autoIncrement" json:"position"`
	ID           uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"id"`
	Sequence     uint64    `gorm:"index" json:"sequence"`
	Type         string    `gorm:"index;not null" json:"type"`
	Holder       string    `gorm:"index" json:"holder,omitempty"`
	Counterparty string    `gorm:"index" json:"counterparty,omitempty"`
	Attributes   string    `gorm:"type:text;not null" json:"attributes"`
	Timestamp    int64     `gorm:"index" json:"timestamp"`
	Digest       string    `gorm:"size:64;not null" json:"digest"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	Holder string
	Type   string
	After  uint64
	Limit  int
}

const maxQueryLimit = 1000

// Store persists committed events through gorm.
type Store struct {
	db         *gorm.DB
	lastDigest []byte
}

// Open connects to the archive database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", driver, err)
	}
	return New(db)
}

// New migrates the schema on db and resumes the digest chain.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("archive: database required")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	store := &Store{db: db}
	var last EventRecord
	err := db.Order("position desc").Limit(1).Take(&last).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("archive: load chain head: %w", err)
	default:
		if store.lastDigest, err = hex.DecodeString(last.Digest); err != nil {
			return nil, fmt.Errorf("archive: chain head digest: %w", err)
		}
	}
	return store, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func digestOf(prev []byte, rec *EventRecord) []byte {
	var nums [16]byte
	binary.BigEndian.PutUint64(nums[:8], rec.Sequence)
	binary.BigEndian.PutUint64(nums[8:], uint64(rec.Timestamp))
	h := blake3.New(32, nil)
	h.Write(prev)
	h.Write(nums[:])
	h.Write([]byte(rec.Type))
	h.Write([]byte{0})
	h.Write([]byte(rec.Attributes))
	return h.Sum(nil)
}

func holderOf(attrs map[string]string) (string, string) {
	for _, key := range []string{"holder", "from", "sender"} {
		if v := attrs[key]; v != "" {
			return v, attrs["to"]
		}
	}
	return "", attrs["to"]
}

// Record appends a batch of committed events in one transaction.
func (s *Store) Record(ctx context.Context, batch []core.CommittedEvent) error {
	if len(batch) == 0 {
		return nil
	}
	prev := s.lastDigest
	rows := make([]EventRecord, 0, len(batch))
	for _, evt := range batch {
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("archive: encode attributes: %w", err)
		}
		holder, counterparty := holderOf(evt.Attributes)
		rec := EventRecord{
			ID:           uuid.New(),
			Sequence:     evt.Sequence,
			Type:         evt.Type,
			Holder:       holder,
			Counterparty: counterparty,
			Attributes:   string(attrs),
			Timestamp:    evt.Timestamp,
		}
		digest := digestOf(prev, &rec)
		rec.Digest = hex.EncodeToString(digest)
		prev = digest
		rows = append(rows, rec)
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	}); err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	s.lastDigest = prev
	return nil
}

// Query returns matching events in archive order.
func (s *Store) Query(ctx context.Context, filter Filter) ([]EventRecord, error) {
	q := s.db.WithContext(ctx).Model(&EventRecord{}).Order("position asc")
	if filter.After > 0 {
		q = q.Where("position > ?", filter.After)
	}
	if t := strings.TrimSpace(filter.Type); t != "" {
		q = q.Where("type = ?", t)
	}
	if h := strings.TrimSpace(filter.Holder); h != "" {
		q = q.Where("holder = ? OR counterparty = ?", h, h)
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	var out []EventRecord
	if err := q.Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	return out, nil
}

// Verify recomputes the digest chain over the whole archive.
func (s *Store) Verify(ctx context.Context) error {
	var prev []byte
	var after uint64
	for {
		var rows []EventRecord
		if err := s.db.WithContext(ctx).Where("position > ?", after).Order("position asc").Limit(500).Find(&rows).Error; err != nil {
			return fmt.Errorf("archive: verify: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			digest := digestOf(prev, &rows[i])
			if hex.EncodeToString(digest) != rows[i].Digest {
				return fmt.Errorf("%w at position %d", ErrChainBroken, rows[i].Position)
			}
			prev = digest
			after = rows[i].Position
		}
	}
}
