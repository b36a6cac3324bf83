package config

// Escrow holds the limits of the trade and dispute engine.
type Escrow struct {
	MinimumReserve        uint64 `toml:"MinimumReserve"`
	VerdictTolerance      uint64 `toml:"VerdictTolerance"`
	EvidenceWindowSeconds int64  `toml:"EvidenceWindowSeconds"`
	VotingWindowSeconds   int64  `toml:"VotingWindowSeconds"`
	TotalDeadlineSeconds  int64  `toml:"TotalDeadlineSeconds"`
}

// Admin lists the hex addresses allowed to approve privileged actions.
type Admin struct {
	Addresses []string `toml:"Addresses"`
	Threshold int      `toml:"Threshold"`
}

// Rewards seeds the reward token rates.
type Rewards struct {
	RatePerTrade   uint64 `toml:"RatePerTrade"`
	RatePerVote    uint64 `toml:"RatePerVote"`
	MinTradeVolume uint64 `toml:"MinTradeVolume"`
}

type Pauses struct {
	Offers   bool `toml:"Offers"`
	Disputes bool `toml:"Disputes"`
}

// Quota defines rate limits for module interactions on a per-address basis.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxVolumePerEpoch   uint64 `toml:"MaxVolumePerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
	CooldownSeconds     uint32 `toml:"CooldownSeconds"`
}

// Quotas groups quotas for each module.
type Quotas struct {
	Offers   Quota `toml:"Offers"`
	Disputes Quota `toml:"Disputes"`
}

// EventStore configures the relational index of emitted events. An empty
// driver disables it.
type EventStore struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Enabled     bool   `toml:"Enabled"`
	ServiceName string `toml:"ServiceName"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Metrics     bool   `toml:"Metrics"`
	Traces      bool   `toml:"Traces"`
}

// GenesisAllocation credits Balance base units to Address on first start.
type GenesisAllocation struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}
