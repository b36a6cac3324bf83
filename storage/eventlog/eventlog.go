package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"p2pescrow/core/events"
	"p2pescrow/core/types"
)

// Record is one persisted engine event.
type Record struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Seq        int64             `gorm:"index"`
	Type       string            `gorm:"index;not null"`
	OfferID    string            `gorm:"index"`
	DisputeID  string            `gorm:"index"`
	Attributes map[string]string `gorm:"serializer:json"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (Record) TableName() string { return "escrow_events" }

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Type      string
	OfferID   string
	DisputeID string
	// AfterSeq skips records at or below the given sequence number.
	AfterSeq int64
	Limit    int
}

const (
	defaultListLimit = 100
	// MaxListLimit bounds a single List page.
	MaxListLimit = 500
)

// Sink persists events emitted by the engines so off-system observers can
// query the history.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq int64
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string) (*Sink, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Sink, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	sink := &Sink{db: db, logger: slog.Default(), nowFn: time.Now}
	var last Record
	res := db.Order("seq desc").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("eventlog: load sequence: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		sink.seq = last.Seq
	}
	return sink, nil
}

func (s *Sink) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Append stores evt.
func (s *Sink) Append(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	record := Record{
		ID:         uuid.New(),
		Seq:        s.seq,
		Type:       evt.Type,
		OfferID:    attrs["offerId"],
		DisputeID:  attrs["disputeId"],
		Attributes: attrs,
		CreatedAt:  s.nowFn().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.seq--
		return fmt.Errorf("eventlog: append %s: %w", evt.Type, err)
	}
	return nil
}

// Emit implements events.Emitter. Write failures are logged; the engines have
// already committed the state change the event describes.
func (s *Sink) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if err := s.Append(context.Background(), evt.Event()); err != nil {
		s.logger.Error("event index write failed",
			slog.String("component", "eventlog"),
			slog.String("type", evt.EventType()),
			slog.Any("error", err))
	}
}

// List returns matching events in emission order.
func (s *Sink) List(ctx context.Context, f Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&Record{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.OfferID != "" {
		q = q.Where("offer_id = ?", f.OfferID)
	}
	if f.DisputeID != "" {
		q = q.Where("dispute_id = ?", f.DisputeID)
	}
	if f.AfterSeq > 0 {
		q = q.Where("seq > ?", f.AfterSeq)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	var out []Record
	if err := q.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
