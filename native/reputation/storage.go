package reputation

import (
	"errors"
	"time"
)

// storage abstracts the subset of state transaction functionality required by
// the reputation ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var recordPrefix = []byte("reputation/record/")

func recordKey(user [20]byte) []byte {
	key := make([]byte, 0, len(recordPrefix)+len(user))
	key = append(key, recordPrefix...)
	return append(key, user[:]...)
}

type storedRecord struct {
	User             [20]byte
	SuccessfulTrades uint64
	DisputedTrades   uint64
	DisputesWon      uint64
	DisputesLost     uint64
	Rating           uint8
	LastUpdated      uint64
}

// Ledger persists reputation records inside a state transaction.
type Ledger struct {
	store storage
	nowFn func() int64
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{
		store: store,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the wall clock stamped onto updated records.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

// Get returns the user's record. Users without history receive a fresh record
// with the initial rating and ok=false.
func (l *Ledger) Get(user [20]byte) (*Record, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errors.New("reputation: storage unavailable")
	}
	if user == ([20]byte{}) {
		return nil, false, ErrUserRequired
	}
	var stored storedRecord
	ok, err := l.store.KVGet(recordKey(user), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return NewRecord(user, 0), false, nil
	}
	return &Record{
		User:             stored.User,
		SuccessfulTrades: stored.SuccessfulTrades,
		DisputedTrades:   stored.DisputedTrades,
		DisputesWon:      stored.DisputesWon,
		DisputesLost:     stored.DisputesLost,
		Rating:           stored.Rating,
		LastUpdated:      int64(stored.LastUpdated),
	}, true, nil
}

// Put writes the record.
func (l *Ledger) Put(record *Record) error {
	if l == nil || l.store == nil {
		return errors.New("reputation: storage unavailable")
	}
	if record == nil || record.User == ([20]byte{}) {
		return ErrUserRequired
	}
	stored := storedRecord{
		User:             record.User,
		SuccessfulTrades: record.SuccessfulTrades,
		DisputedTrades:   record.DisputedTrades,
		DisputesWon:      record.DisputesWon,
		DisputesLost:     record.DisputesLost,
		Rating:           record.Rating,
	}
	if record.LastUpdated > 0 {
		stored.LastUpdated = uint64(record.LastUpdated)
	}
	return l.store.KVPut(recordKey(record.User), &stored)
}

// Apply loads the user's record, applies the trade outcome, recomputes the
// rating and writes it back.
func (l *Ledger) Apply(user [20]byte, successfulTrade, disputeResolved, disputeWon bool) (*Record, error) {
	record, _, err := l.Get(user)
	if err != nil {
		return nil, err
	}
	if successfulTrade {
		if err := increment(&record.SuccessfulTrades); err != nil {
			return nil, err
		}
	}
	if disputeResolved {
		if err := increment(&record.DisputedTrades); err != nil {
			return nil, err
		}
		counter := &record.DisputesLost
		if disputeWon {
			counter = &record.DisputesWon
		}
		if err := increment(counter); err != nil {
			return nil, err
		}
	}
	record.Recompute()
	record.LastUpdated = l.now()
	if err := l.Put(record); err != nil {
		return nil, err
	}
	return record, nil
}
