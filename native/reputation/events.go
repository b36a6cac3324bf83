package reputation

import (
	"encoding/hex"
	"strconv"

	"p2pescrow/core/types"
)

const (
	// EventTypeReputationUpdated is emitted whenever a user's record changes.
	EventTypeReputationUpdated = "reputation.updated"
)

// NewReputationUpdatedEvent returns the canonical event payload for a record
// update.
func NewReputationUpdatedEvent(r *Record) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: EventTypeReputationUpdated, Attributes: attrs}
	}
	attrs["user"] = hex.EncodeToString(r.User[:])
	attrs["successfulTrades"] = strconv.FormatUint(r.SuccessfulTrades, 10)
	attrs["disputedTrades"] = strconv.FormatUint(r.DisputedTrades, 10)
	attrs["rating"] = strconv.FormatUint(uint64(r.Rating), 10)
	attrs["updatedAt"] = strconv.FormatInt(r.LastUpdated, 10)
	return &types.Event{Type: EventTypeReputationUpdated, Attributes: attrs}
}
