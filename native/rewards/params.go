package rewards

import "fmt"

const (
	DefaultRatePerTrade   uint64 = 100
	DefaultRatePerVote    uint64 = 50
	DefaultMinTradeVolume uint64 = 100_000_000

	MaxRatePerTrade   uint64 = 10_000
	MaxRatePerVote    uint64 = 5_000
	MinTradeVolumeMin uint64 = 1_000_000
	MinTradeVolumeMax uint64 = 100_000_000_000

	// MinUpdateInterval is the minimum number of seconds between two
	// parameter updates.
	MinUpdateInterval int64 = 3600
)

// Params are the global reward rates.
type Params struct {
	RatePerTrade   uint64
	RatePerVote    uint64
	MinTradeVolume uint64
}

// DefaultParams returns the rates used until an admin changes them.
func DefaultParams() Params {
	return Params{
		RatePerTrade:   DefaultRatePerTrade,
		RatePerVote:    DefaultRatePerVote,
		MinTradeVolume: DefaultMinTradeVolume,
	}
}

// Validate checks the rates against their bounds.
func (p Params) Validate() error {
	if p.RatePerTrade > MaxRatePerTrade {
		return fmt.Errorf("%w: rate per trade %d exceeds %d", ErrInvalidParams, p.RatePerTrade, MaxRatePerTrade)
	}
	if p.RatePerVote > MaxRatePerVote {
		return fmt.Errorf("%w: rate per vote %d exceeds %d", ErrInvalidParams, p.RatePerVote, MaxRatePerVote)
	}
	if p.MinTradeVolume < MinTradeVolumeMin || p.MinTradeVolume > MinTradeVolumeMax {
		return fmt.Errorf("%w: min trade volume %d outside [%d, %d]", ErrInvalidParams, p.MinTradeVolume, MinTradeVolumeMin, MinTradeVolumeMax)
	}
	return nil
}
