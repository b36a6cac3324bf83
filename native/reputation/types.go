package reputation

import "errors"

// InitialRating is the rating a user starts with before any trade settles.
const InitialRating uint8 = 100

var (
	// ErrUserRequired is returned for the zero address.
	ErrUserRequired = errors.New("reputation: user required")
	// ErrCounterOverflow marks a trade counter that can no longer grow.
	ErrCounterOverflow = errors.New("reputation: counter overflow")
)

// Record is the trade history and derived rating of a single user.
type Record struct {
	User             [20]byte
	SuccessfulTrades uint64
	DisputedTrades   uint64
	DisputesWon      uint64
	DisputesLost     uint64
	Rating           uint8
	LastUpdated      int64
}

// NewRecord returns the record of a user with no settled trades.
func NewRecord(user [20]byte, now int64) *Record {
	return &Record{User: user, Rating: InitialRating, LastUpdated: now}
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Recompute derives the rating from the counters. The rating weighs the share
// of trades that settled without a dispute at 70% and the share of disputes
// won at 30%. A record with no settled trades keeps its current rating.
func (r *Record) Recompute() {
	total := r.SuccessfulTrades + r.DisputedTrades
	if total == 0 {
		return
	}
	successRate := r.SuccessfulTrades * 100 / total
	winRate := uint64(100)
	if r.DisputedTrades > 0 {
		winRate = r.DisputesWon * 100 / r.DisputedTrades
	}
	r.Rating = uint8((successRate*70 + winRate*30) / 100)
}

func increment(v *uint64) error {
	if *v == ^uint64(0) {
		return ErrCounterOverflow
	}
	*v++
	return nil
}
