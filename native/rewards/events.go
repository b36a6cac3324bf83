package rewards

import (
	"encoding/hex"
	"strconv"

	"p2pescrow/core/types"
)

const (
	EventTypeRewardsEarned  = "rewards.earned"
	EventTypeRewardsClaimed = "rewards.claimed"
	EventTypeParamsUpdated  = "rewards.params_updated"
)

// Reasons attached to rewards.earned events.
const (
	ReasonTrade = "trade"
	ReasonVote  = "vote"
)

func newEarnedEvent(user [20]byte, amount uint64, reason string, at int64) *types.Event {
	return &types.Event{
		Type: EventTypeRewardsEarned,
		Attributes: map[string]string{
			"user":      hex.EncodeToString(user[:]),
			"amount":    strconv.FormatUint(amount, 10),
			"reason":    reason,
			"timestamp": strconv.FormatInt(at, 10),
		},
	}
}

func newClaimedEvent(user [20]byte, amount uint64, at int64) *types.Event {
	return &types.Event{
		Type: EventTypeRewardsClaimed,
		Attributes: map[string]string{
			"user":      hex.EncodeToString(user[:]),
			"amount":    strconv.FormatUint(amount, 10),
			"timestamp": strconv.FormatInt(at, 10),
		},
	}
}

func newParamsUpdatedEvent(p Params, at int64) *types.Event {
	return &types.Event{
		Type: EventTypeParamsUpdated,
		Attributes: map[string]string{
			"ratePerTrade":   strconv.FormatUint(p.RatePerTrade, 10),
			"ratePerVote":    strconv.FormatUint(p.RatePerVote, 10),
			"minTradeVolume": strconv.FormatUint(p.MinTradeVolume, 10),
			"timestamp":      strconv.FormatInt(at, 10),
		},
	}
}
