package rewards

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"p2pescrow/core/events"
	"p2pescrow/core/state"
	"p2pescrow/core/types"
)

// ActionUpdateParams is the admin action approving a rate change.
const ActionUpdateParams = "rewards.update_params"

// Authorizer verifies admin approval for an action on a subject.
type Authorizer interface {
	Authorize(action string, subject [32]byte, approvals [][]byte) error
}

// ParamsSubject is the digest admins approve when changing the rates.
// lastUpdated is the token's LastUpdated at signing time, so an approval
// applies to a single update and cannot be replayed once the rates move.
func ParamsSubject(p Params, lastUpdated int64) [32]byte {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[0:8], p.RatePerTrade)
	binary.BigEndian.PutUint64(buf[8:16], p.RatePerVote)
	binary.BigEndian.PutUint64(buf[16:24], p.MinTradeVolume)
	binary.BigEndian.PutUint64(buf[24:32], uint64(lastUpdated))
	return ethcrypto.Keccak256Hash([]byte(ActionUpdateParams), buf[:])
}

// Engine accrues reward units for settled trades and jury votes and mints
// them into the account's reward balance on claim.
type Engine struct {
	store      *state.Store
	emitter    events.Emitter
	nowFn      func() int64
	authorizer Authorizer
	initial    Params
}

// NewEngine constructs a rewards engine. initial seeds the token parameters
// until an admin update is stored.
func NewEngine(store *state.Store, initial Params) (*Engine, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		initial: initial,
	}, nil
}

// SetEmitter configures the emitter receiving reward events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
}

// SetAuthorizer installs the admin approval check used by UpdateParams.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.authorizer = auth }

func (e *Engine) update(fn func(tx *state.Tx, now int64) (*types.Event, error)) error {
	if e == nil || e.store == nil {
		return errors.New("rewards: engine not configured")
	}
	now := e.nowFn()
	var evt *types.Event
	err := e.store.Update(func(tx *state.Tx) error {
		var err error
		evt, err = fn(tx, now)
		return err
	})
	if err != nil {
		return err
	}
	if evt != nil {
		e.emitter.Emit(events.Wrap(evt))
	}
	return nil
}

// AccrueTrade credits the per-trade rate to user. Trades below the minimum
// volume earn nothing.
func (e *Engine) AccrueTrade(user [20]byte, volume uint64) error {
	if user == ([20]byte{}) {
		return ErrUserRequired
	}
	return e.update(func(tx *state.Tx, now int64) (*types.Event, error) {
		token, err := loadToken(tx, e.initial)
		if err != nil {
			return nil, err
		}
		if volume < token.Params.MinTradeVolume {
			return nil, nil
		}
		rewards, err := loadUser(tx, user)
		if err != nil {
			return nil, err
		}
		if err := rewards.credit(token.Params.RatePerTrade); err != nil {
			return nil, err
		}
		if rewards.TradingVolume, err = addUint64(rewards.TradingVolume, volume); err != nil {
			return nil, err
		}
		rewards.LastTradeReward = now
		if err := putUser(tx, rewards); err != nil {
			return nil, err
		}
		return newEarnedEvent(user, token.Params.RatePerTrade, ReasonTrade, now), nil
	})
}

// AccrueVote credits the per-vote rate to a juror.
func (e *Engine) AccrueVote(juror [20]byte) error {
	if juror == ([20]byte{}) {
		return ErrUserRequired
	}
	return e.update(func(tx *state.Tx, now int64) (*types.Event, error) {
		token, err := loadToken(tx, e.initial)
		if err != nil {
			return nil, err
		}
		rewards, err := loadUser(tx, juror)
		if err != nil {
			return nil, err
		}
		if err := rewards.credit(token.Params.RatePerVote); err != nil {
			return nil, err
		}
		if rewards.GovernanceVotes, err = addUint64(rewards.GovernanceVotes, 1); err != nil {
			return nil, err
		}
		rewards.LastVoteReward = now
		if err := putUser(tx, rewards); err != nil {
			return nil, err
		}
		return newEarnedEvent(juror, token.Params.RatePerVote, ReasonVote, now), nil
	})
}

// Claim mints the user's unclaimed rewards into their account reward balance
// and returns the amount minted.
func (e *Engine) Claim(user [20]byte) (uint64, error) {
	if user == ([20]byte{}) {
		return 0, ErrUserRequired
	}
	var claimed uint64
	err := e.update(func(tx *state.Tx, now int64) (*types.Event, error) {
		rewards, err := loadUser(tx, user)
		if err != nil {
			return nil, err
		}
		if rewards.Unclaimed == 0 {
			return nil, ErrNoRewardsToClaim
		}
		amount := rewards.Unclaimed
		token, err := loadToken(tx, e.initial)
		if err != nil {
			return nil, err
		}
		if token.TotalSupply, err = addUint64(token.TotalSupply, amount); err != nil {
			return nil, err
		}
		if rewards.TotalClaimed, err = addUint64(rewards.TotalClaimed, amount); err != nil {
			return nil, err
		}
		rewards.Unclaimed = 0
		account, err := tx.GetAccount(user)
		if err != nil {
			return nil, err
		}
		account.RewardBalance = new(big.Int).Add(account.RewardBalance, new(big.Int).SetUint64(amount))
		if err := tx.PutAccount(user, account); err != nil {
			return nil, err
		}
		if err := putUser(tx, rewards); err != nil {
			return nil, err
		}
		if err := putToken(tx, token); err != nil {
			return nil, err
		}
		claimed = amount
		return newClaimedEvent(user, amount, now), nil
	})
	if err != nil {
		return 0, err
	}
	return claimed, nil
}

// UpdateParams replaces the reward rates. Requires admin approval over
// ParamsSubject(p, token.LastUpdated) and may run at most once per
// MinUpdateInterval.
func (e *Engine) UpdateParams(p Params, approvals [][]byte) error {
	if e.authorizer == nil {
		return fmt.Errorf("%w: no authorizer configured", ErrAdminRequired)
	}
	return e.update(func(tx *state.Tx, now int64) (*types.Event, error) {
		token, err := loadToken(tx, e.initial)
		if err != nil {
			return nil, err
		}
		if err := e.authorizer.Authorize(ActionUpdateParams, ParamsSubject(p, token.LastUpdated), approvals); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAdminRequired, err)
		}
		if token.LastUpdated > 0 && now-token.LastUpdated < MinUpdateInterval {
			return nil, fmt.Errorf("%w: params updated %ds ago", ErrTooManyRequests, now-token.LastUpdated)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		token.Params = p
		token.LastUpdated = now
		if err := putToken(tx, token); err != nil {
			return nil, err
		}
		return newParamsUpdatedEvent(p, now), nil
	})
}

// Token returns the current global token state.
func (e *Engine) Token() (*Token, error) {
	if e == nil || e.store == nil {
		return nil, errors.New("rewards: engine not configured")
	}
	var out *Token
	err := e.store.View(func(tx *state.Tx) error {
		token, err := loadToken(tx, e.initial)
		out = token
		return err
	})
	return out, err
}

// User returns the reward totals of user.
func (e *Engine) User(user [20]byte) (*UserRewards, error) {
	if e == nil || e.store == nil {
		return nil, errors.New("rewards: engine not configured")
	}
	var out *UserRewards
	err := e.store.View(func(tx *state.Tx) error {
		rewards, err := loadUser(tx, user)
		out = rewards
		return err
	})
	return out, err
}
