package escrow

import (
	"fmt"

	nativecommon "p2pescrow/native/common"
)

const (
	MaxFiatCurrencyLen  = 10
	MaxPaymentMethodLen = 50
	MaxDisputeReasonLen = 200
	MaxEvidenceURLLen   = 300
	MaxEvidenceItems    = 5
	JurorCount          = 3
	MajorityVotes       = 2

	DefaultEvidenceWindow   int64  = 172_800
	DefaultVotingWindow     int64  = 604_800
	DefaultTotalDeadline    int64  = 776_800
	DefaultVerdictTolerance uint64 = 5_000
	MaxVerdictTolerance     uint64 = 1_000_000
	DefaultMinimumReserve   uint64 = 890_880

	DefaultOfferCooldownSeconds uint32 = 300

	// Dispute opening is not throttled unless configured.
	DefaultDisputeCooldownSeconds uint32 = 0

	moduleOffers   = "offers"
	moduleDisputes = "disputes"
)

// Params holds the tunable limits of the escrow and dispute engine.
type Params struct {
	EvidenceWindow   int64
	VotingWindow     int64
	TotalDeadline    int64
	VerdictTolerance uint64
	OfferQuota       nativecommon.Quota
	DisputeQuota     nativecommon.Quota
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		EvidenceWindow:   DefaultEvidenceWindow,
		VotingWindow:     DefaultVotingWindow,
		TotalDeadline:    DefaultTotalDeadline,
		VerdictTolerance: DefaultVerdictTolerance,
		OfferQuota:       nativecommon.Quota{CooldownSeconds: DefaultOfferCooldownSeconds},
		DisputeQuota:     nativecommon.Quota{CooldownSeconds: DefaultDisputeCooldownSeconds},
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.EvidenceWindow <= 0 {
		return fmt.Errorf("escrow: evidence window must be positive")
	}
	if p.VotingWindow <= 0 {
		return fmt.Errorf("escrow: voting window must be positive")
	}
	if p.TotalDeadline < p.EvidenceWindow+p.VotingWindow {
		return fmt.Errorf("escrow: total deadline %d shorter than evidence+voting windows %d", p.TotalDeadline, p.EvidenceWindow+p.VotingWindow)
	}
	if p.VerdictTolerance > MaxVerdictTolerance {
		return fmt.Errorf("escrow: verdict tolerance %d exceeds maximum %d", p.VerdictTolerance, MaxVerdictTolerance)
	}
	return nil
}
