package escrow

import (
	"fmt"
	"log/slog"
	"time"

	"p2pescrow/core/events"
	"p2pescrow/core/state"
	"p2pescrow/core/types"
	nativecommon "p2pescrow/native/common"
	"p2pescrow/observability"
)

// ReserveCalculator reports the minimum balance a freshly opened vault must
// hold.
type ReserveCalculator interface {
	MinimumReserve() (uint64, error)
}

// FixedReserve is a ReserveCalculator returning a constant.
type FixedReserve uint64

// MinimumReserve implements ReserveCalculator.
func (f FixedReserve) MinimumReserve() (uint64, error) { return uint64(f), nil }

// Authorizer verifies admin approval for an action on a subject.
type Authorizer interface {
	Authorize(action string, subject [32]byte, approvals [][]byte) error
}

// Admin actions passed to the Authorizer.
const (
	ActionAssignJurors   = "escrow.assign_jurors"
	ActionExecuteVerdict = "escrow.execute_verdict"
)

// ReputationRecorder receives trade outcomes after they commit.
type ReputationRecorder interface {
	RecordTradeSuccess(user [20]byte) error
	RecordDisputeOutcome(user [20]byte, won bool) error
}

// RewardAccruer receives reward-bearing activity after it commits.
type RewardAccruer interface {
	AccrueTrade(user [20]byte, volume uint64) error
	AccrueVote(juror [20]byte) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the offer, vault and dispute state machines to persistent
// state, admin authorization and event emitters. Every entry point runs in a
// single state transaction; events and collaborator hooks only observe
// committed results.
type Engine struct {
	store      *state.Store
	emitter    events.Emitter
	nowFn      func() int64
	pauses     nativecommon.PauseView
	reserve    ReserveCalculator
	authorizer Authorizer
	reputation ReputationRecorder
	rewards    RewardAccruer
	params     Params
	logger     *slog.Logger
}

// NewEngine creates an escrow engine with default parameters, a fixed default
// reserve and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		reserve: FixedReserve(DefaultMinimumReserve),
		params:  DefaultParams(),
		logger:  slog.Default(),
	}
}

// SetStore configures the state backend.
func (e *Engine) SetStore(store *state.Store) { e.store = store }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses wires the pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetReserveCalculator overrides the minimum vault reserve. A nil calculator
// restores the fixed default.
func (e *Engine) SetReserveCalculator(calc ReserveCalculator) {
	if calc == nil {
		calc = FixedReserve(DefaultMinimumReserve)
	}
	e.reserve = calc
}

// SetAuthorizer installs the admin multisig gating juror assignment and
// verdict execution.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.authorizer = auth }

// SetReputation configures the best-effort reputation hook run after
// settlements and verdicts.
func (e *Engine) SetReputation(rec ReputationRecorder) { e.reputation = rec }

// SetRewards configures the best-effort reward accrual hook.
func (e *Engine) SetRewards(acc RewardAccruer) { e.rewards = acc }

// SetLogger configures the logger used for discarded hook failures.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetParams replaces the engine limits after validating them.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = p
	return nil
}

// Params returns the active engine limits.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// txContext carries the per-operation transaction and the events it produced.
type txContext struct {
	tx      *state.Tx
	events  []*types.Event
	after   []func()
	now     int64
	payouts map[string]uint64
}

func (c *txContext) emit(evt *types.Event) { c.events = append(c.events, evt) }

// afterCommit schedules fn to run once the transaction has been committed.
func (c *txContext) afterCommit(fn func()) { c.after = append(c.after, fn) }

func (c *txContext) recordPayout(path string, units uint64) {
	if c.payouts == nil {
		c.payouts = make(map[string]uint64)
	}
	c.payouts[path] += units
}

// execute runs fn inside a state transaction. Events and deferred hooks are
// released only if the transaction commits.
func (e *Engine) execute(operation, module string, fn func(c *txContext) error) error {
	start := time.Now()
	err := e.executeTx(module, fn)
	observability.Escrow().Observe(operation, time.Since(start), string(Classify(err)))
	return err
}

func (e *Engine) executeTx(module string, fn func(c *txContext) error) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	if err := nativecommon.Guard(e.pauses, module); err != nil {
		return err
	}
	ctx := &txContext{now: e.now()}
	err := e.store.Update(func(tx *state.Tx) error {
		ctx.tx = tx
		return fn(ctx)
	})
	if err != nil {
		return err
	}
	for _, evt := range ctx.events {
		e.emitter.Emit(escrowEvent{evt: evt})
	}
	for path, units := range ctx.payouts {
		observability.Escrow().RecordPayout(path, units)
	}
	for _, hook := range ctx.after {
		hook()
	}
	return nil
}

// runHook invokes a best-effort collaborator. Failures are logged and
// discarded; the settlement that triggered the hook is already committed.
func (e *Engine) runHook(name string, fn func() error) {
	if err := fn(); err != nil {
		observability.Escrow().RecordHookError(name)
		e.logger.Warn("escrow hook failed",
			slog.String("component", "escrow"),
			slog.String("hook", name),
			slog.Any("error", err))
	}
}

func (e *Engine) authorize(action string, subject [32]byte, approvals [][]byte) error {
	if e.authorizer == nil {
		return errNilAuthorizer
	}
	if err := e.authorizer.Authorize(action, subject, approvals); err != nil {
		return fmt.Errorf("%w: %w", ErrAdminRequired, err)
	}
	return nil
}

func (e *Engine) minimumReserve() (uint64, error) {
	if e.reserve == nil {
		return DefaultMinimumReserve, nil
	}
	reserve, err := e.reserve.MinimumReserve()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReserveUnavailable, err)
	}
	return reserve, nil
}

// Offer returns the stored offer.
func (e *Engine) Offer(id [32]byte) (*Offer, error) {
	var out *Offer
	err := e.view(func(tx *state.Tx) error {
		offer, err := loadOffer(tx, id)
		out = offer
		return err
	})
	return out, err
}

// OffersBySeller returns the offers created by seller in creation order.
func (e *Engine) OffersBySeller(seller [20]byte) ([]*Offer, error) {
	return e.offersByIndex(sellerIndexKey(seller))
}

// OffersByBuyer returns the offers accepted by buyer in acceptance order.
func (e *Engine) OffersByBuyer(buyer [20]byte) ([]*Offer, error) {
	return e.offersByIndex(buyerIndexKey(buyer))
}

func (e *Engine) offersByIndex(key []byte) ([]*Offer, error) {
	var out []*Offer
	err := e.view(func(tx *state.Tx) error {
		ids, err := loadIndex(tx, key)
		if err != nil {
			return err
		}
		out = make([]*Offer, 0, len(ids))
		for _, id := range ids {
			offer, err := loadOffer(tx, id)
			if err != nil {
				return err
			}
			out = append(out, offer)
		}
		return nil
	})
	return out, err
}

// Dispute returns the stored dispute.
func (e *Engine) Dispute(id [32]byte) (*Dispute, error) {
	var out *Dispute
	err := e.view(func(tx *state.Tx) error {
		dispute, err := loadDispute(tx, id)
		out = dispute
		return err
	})
	return out, err
}

// DisputesForJuror returns the disputes the juror has been assigned to.
func (e *Engine) DisputesForJuror(juror [20]byte) ([]*Dispute, error) {
	var out []*Dispute
	err := e.view(func(tx *state.Tx) error {
		ids, err := loadIndex(tx, jurorIndexKey(juror))
		if err != nil {
			return err
		}
		out = make([]*Dispute, 0, len(ids))
		for _, id := range ids {
			dispute, err := loadDispute(tx, id)
			if err != nil {
				return err
			}
			out = append(out, dispute)
		}
		return nil
	})
	return out, err
}

// Vote returns the juror's ballot on the dispute if one was cast.
func (e *Engine) Vote(disputeID [32]byte, juror [20]byte) (*Vote, bool, error) {
	var (
		out   *Vote
		found bool
	)
	err := e.view(func(tx *state.Tx) error {
		vote, ok, err := loadVote(tx, disputeID, juror)
		out, found = vote, ok
		return err
	})
	return out, found, err
}

// VaultBalance returns the current balance of the offer's vault.
func (e *Engine) VaultBalance(offerID [32]byte) (uint64, error) {
	var out uint64
	err := e.view(func(tx *state.Tx) error {
		offer, err := loadOffer(tx, offerID)
		if err != nil {
			return err
		}
		balance, err := openVault(tx, offer.ID, offer.Reserve).Balance()
		out = balance
		return err
	})
	return out, err
}

func (e *Engine) view(fn func(tx *state.Tx) error) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	return e.store.View(fn)
}
