package reputation

import (
	"errors"

	"p2pescrow/core/events"
	"p2pescrow/core/state"
)

// Engine runs reputation updates in their own state transactions. It is
// driven by the escrow engine after trades and disputes settle.
type Engine struct {
	store   *state.Store
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs an engine backed by the provided state store.
func NewEngine(store *state.Store) *Engine {
	return &Engine{store: store, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the emitter receiving reputation.updated events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the wall clock used by the underlying ledger.
func (e *Engine) SetNowFunc(now func() int64) { e.nowFn = now }

func (e *Engine) ledger(tx *state.Tx) *Ledger {
	l := NewLedger(tx)
	if e.nowFn != nil {
		l.SetNowFunc(e.nowFn)
	}
	return l
}

func (e *Engine) apply(user [20]byte, successfulTrade, disputeResolved, disputeWon bool) error {
	if e == nil || e.store == nil {
		return errors.New("reputation: engine not configured")
	}
	var updated *Record
	err := e.store.Update(func(tx *state.Tx) error {
		record, err := e.ledger(tx).Apply(user, successfulTrade, disputeResolved, disputeWon)
		updated = record
		return err
	})
	if err != nil {
		return err
	}
	e.emitter.Emit(events.Wrap(NewReputationUpdatedEvent(updated)))
	return nil
}

// RecordTradeSuccess credits the user with a trade that settled without a
// dispute.
func (e *Engine) RecordTradeSuccess(user [20]byte) error {
	return e.apply(user, true, false, false)
}

// RecordDisputeOutcome credits the user with a resolved dispute.
func (e *Engine) RecordDisputeOutcome(user [20]byte, won bool) error {
	return e.apply(user, false, true, won)
}

// Get returns the user's record, or a fresh one for users without history.
func (e *Engine) Get(user [20]byte) (*Record, error) {
	if e == nil || e.store == nil {
		return nil, errors.New("reputation: engine not configured")
	}
	var out *Record
	err := e.store.View(func(tx *state.Tx) error {
		record, _, err := e.ledger(tx).Get(user)
		out = record
		return err
	})
	return out, err
}
