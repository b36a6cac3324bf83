package config

import (
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"p2pescrow/core/state"
	nativecommon "p2pescrow/native/common"
	"p2pescrow/native/escrow"
	"p2pescrow/native/rewards"
)

// ValidateConfig checks the runtime values before the node starts.
func ValidateConfig(c *Config) error {
	if _, err := c.EscrowParams(); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	if err := c.RewardParams().Validate(); err != nil {
		return fmt.Errorf("rewards: %w", err)
	}
	admins, err := c.AdminAddresses()
	if err != nil {
		return err
	}
	if len(admins) > 0 && (c.Admin.Threshold < 1 || c.Admin.Threshold > len(admins)) {
		return fmt.Errorf("admin: threshold %d outside [1, %d]", c.Admin.Threshold, len(admins))
	}
	switch strings.ToLower(strings.TrimSpace(c.EventStore.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("eventstore: unsupported driver %q", c.EventStore.Driver)
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return err
	}
	return nil
}

// EscrowParams converts the escrow section into engine parameters.
func (c *Config) EscrowParams() (escrow.Params, error) {
	params := escrow.Params{
		EvidenceWindow:   c.Escrow.EvidenceWindowSeconds,
		VotingWindow:     c.Escrow.VotingWindowSeconds,
		TotalDeadline:    c.Escrow.TotalDeadlineSeconds,
		VerdictTolerance: c.Escrow.VerdictTolerance,
		OfferQuota:       c.Quotas.Offers.native(),
		DisputeQuota:     c.Quotas.Disputes.native(),
	}
	if err := params.Validate(); err != nil {
		return escrow.Params{}, err
	}
	return params, nil
}

func (q Quota) native() nativecommon.Quota {
	return nativecommon.Quota{
		MaxRequestsPerEpoch: q.MaxRequestsPerEpoch,
		MaxVolumePerEpoch:   q.MaxVolumePerEpoch,
		EpochSeconds:        q.EpochSeconds,
		CooldownSeconds:     q.CooldownSeconds,
	}
}

// RewardParams converts the rewards section into token parameters.
func (c *Config) RewardParams() rewards.Params {
	return rewards.Params{
		RatePerTrade:   c.Rewards.RatePerTrade,
		RatePerVote:    c.Rewards.RatePerVote,
		MinTradeVolume: c.Rewards.MinTradeVolume,
	}
}

// PauseSet returns the module pause flags keyed by engine module name.
func (c *Config) PauseSet() nativecommon.StaticPauses {
	return nativecommon.StaticPauses{
		"offers":   c.Pauses.Offers,
		"disputes": c.Pauses.Disputes,
	}
}

// AdminAddresses parses the configured admin set.
func (c *Config) AdminAddresses() ([]ethcommon.Address, error) {
	out := make([]ethcommon.Address, 0, len(c.Admin.Addresses))
	for _, raw := range c.Admin.Addresses {
		trimmed := strings.TrimSpace(raw)
		if !ethcommon.IsHexAddress(trimmed) {
			return nil, fmt.Errorf("admin: invalid address %q", raw)
		}
		out = append(out, ethcommon.HexToAddress(trimmed))
	}
	return out, nil
}

// GenesisAllocations parses the genesis section into state allocations.
func (c *Config) GenesisAllocations() ([]state.Allocation, error) {
	out := make([]state.Allocation, 0, len(c.Genesis))
	for i, alloc := range c.Genesis {
		addr := strings.TrimSpace(alloc.Address)
		if !ethcommon.IsHexAddress(addr) {
			return nil, fmt.Errorf("genesis[%d]: invalid address %q", i, alloc.Address)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Balance), 10)
		if !ok || balance.Sign() < 0 {
			return nil, fmt.Errorf("genesis[%d]: invalid balance %q", i, alloc.Balance)
		}
		out = append(out, state.Allocation{Address: ethcommon.HexToAddress(addr), Balance: balance})
	}
	return out, nil
}
