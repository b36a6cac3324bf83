package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"p2pescrow/native/escrow"
	"p2pescrow/native/rewards"
)

type Config struct {
	DataDir       string              `toml:"DataDir"`
	Env           string              `toml:"Env"`
	LogFile       string              `toml:"LogFile"`
	GatewayConfig string              `toml:"GatewayConfig"`
	Escrow        Escrow              `toml:"Escrow"`
	Admin         Admin               `toml:"Admin"`
	Rewards       Rewards             `toml:"Rewards"`
	Pauses        Pauses              `toml:"Pauses"`
	Quotas        Quotas              `toml:"Quotas"`
	EventStore    EventStore          `toml:"EventStore"`
	Telemetry     Telemetry           `toml:"Telemetry"`
	Genesis       []GenesisAllocation `toml:"Genesis"`
}

// Default returns a configuration carrying the production limits.
func Default() *Config {
	params := escrow.DefaultParams()
	rates := rewards.DefaultParams()
	return &Config{
		DataDir:       "./p2pescrow-data",
		Env:           "dev",
		GatewayConfig: "gateway.yaml",
		Escrow: Escrow{
			MinimumReserve:        escrow.DefaultMinimumReserve,
			VerdictTolerance:      params.VerdictTolerance,
			EvidenceWindowSeconds: params.EvidenceWindow,
			VotingWindowSeconds:   params.VotingWindow,
			TotalDeadlineSeconds:  params.TotalDeadline,
		},
		Admin: Admin{Threshold: 1},
		Rewards: Rewards{
			RatePerTrade:   rates.RatePerTrade,
			RatePerVote:    rates.RatePerVote,
			MinTradeVolume: rates.MinTradeVolume,
		},
		Quotas: Quotas{
			Offers:   Quota{CooldownSeconds: escrow.DefaultOfferCooldownSeconds},
			Disputes: Quota{CooldownSeconds: escrow.DefaultDisputeCooldownSeconds},
		},
		EventStore: EventStore{Driver: "sqlite", DSN: "events.db"},
		Telemetry: Telemetry{
			ServiceName: "p2pescrowd",
			Endpoint:    "localhost:4318",
			Metrics:     true,
			Traces:      true,
		},
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./p2pescrow-data"
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "dev"
	}
	if c.Admin.Threshold == 0 {
		c.Admin.Threshold = 1
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "p2pescrowd"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ResolvePath anchors relative paths at DataDir.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
