package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"p2pescrow/config"
	"p2pescrow/native/rewards"
	"p2pescrow/storage/eventlog"
)

const (
	cmdGenerateKey    = "generate-key"
	cmdApproveJurors  = "approve-jurors"
	cmdApproveVerdict = "approve-verdict"
	cmdApproveParams  = "approve-reward-params"
	cmdExportEvents   = "export-events"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case cmdGenerateKey:
		err = runGenerateKey()
	case cmdApproveJurors:
		err = runApproveJurors(os.Args[2:])
	case cmdApproveVerdict:
		err = runApproveVerdict(os.Args[2:])
	case cmdApproveParams:
		err = runApproveParams(os.Args[2:])
	case cmdExportEvents:
		err = runExportEvents(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: p2pescrowctl <command> [flags]

Commands:
  %-22s create an admin key and print its address
  %-22s sign a juror assignment (-dispute, -jurors a,b,c)
  %-22s sign a verdict execution (-dispute, -buyer, -seller)
  %-22s sign a reward parameter update (-per-trade, -per-vote, -min-volume, -last-updated)
  %-22s write the event index to a parquet file

Signing commands read the admin key from -key, %s or a terminal prompt.
`, cmdGenerateKey, cmdApproveJurors, cmdApproveVerdict, cmdApproveParams, cmdExportEvents, adminKeyEnv)
}

func runGenerateKey() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"address":    ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		"privateKey": hexutil.Encode(ethcrypto.FromECDSA(key)),
	})
}

func runApproveJurors(args []string) error {
	fs := flag.NewFlagSet(cmdApproveJurors, flag.ExitOnError)
	keyFile := fs.String("key", "", "File holding the hex admin private key")
	dispute := fs.String("dispute", "", "Dispute ID (0x-prefixed hex)")
	jurors := fs.String("jurors", "", "Comma separated juror addresses")
	_ = fs.Parse(args)

	key, err := newKeySource(*keyFile).Load()
	if err != nil {
		return err
	}
	out, err := approveJurors(key, *dispute, *jurors)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runApproveVerdict(args []string) error {
	fs := flag.NewFlagSet(cmdApproveVerdict, flag.ExitOnError)
	keyFile := fs.String("key", "", "File holding the hex admin private key")
	dispute := fs.String("dispute", "", "Dispute ID (0x-prefixed hex)")
	buyer := fs.String("buyer", "", "Buyer address recorded on the offer")
	seller := fs.String("seller", "", "Seller address recorded on the offer")
	_ = fs.Parse(args)

	key, err := newKeySource(*keyFile).Load()
	if err != nil {
		return err
	}
	out, err := approveVerdict(key, *dispute, *buyer, *seller)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runApproveParams(args []string) error {
	defaults := rewards.DefaultParams()
	fs := flag.NewFlagSet(cmdApproveParams, flag.ExitOnError)
	keyFile := fs.String("key", "", "File holding the hex admin private key")
	perTrade := fs.Uint64("per-trade", defaults.RatePerTrade, "Reward units per settled trade")
	perVote := fs.Uint64("per-vote", defaults.RatePerVote, "Reward units per juror vote")
	minVolume := fs.Uint64("min-volume", defaults.MinTradeVolume, "Minimum trade volume that earns rewards")
	lastUpdated := fs.Int64("last-updated", 0, "Current lastUpdated of the reward token (GET /v1/rewards/token)")
	_ = fs.Parse(args)

	key, err := newKeySource(*keyFile).Load()
	if err != nil {
		return err
	}
	out, err := approveRewardParams(key, rewards.Params{
		RatePerTrade:   *perTrade,
		RatePerVote:    *perVote,
		MinTradeVolume: *minVolume,
	}, *lastUpdated)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runExportEvents(args []string) error {
	fs := flag.NewFlagSet(cmdExportEvents, flag.ExitOnError)
	configPath := fs.String("config", "./config.toml", "Node configuration used to locate the event index")
	outPath := fs.String("out", "events.parquet", "Output parquet file")
	eventType := fs.String("type", "", "Only export events of this type")
	offerID := fs.String("offer", "", "Only export events of this offer ID")
	disputeID := fs.String("dispute", "", "Only export events of this dispute ID")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	driver := strings.TrimSpace(cfg.EventStore.Driver)
	if driver == "" {
		return fmt.Errorf("event index disabled in %s", *configPath)
	}
	dsn := cfg.EventStore.DSN
	if strings.EqualFold(driver, "sqlite") {
		dsn = cfg.ResolvePath(dsn)
	}
	sink, err := eventlog.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer sink.Close()

	file, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", *outPath, err)
	}
	written, err := sink.ExportParquet(context.Background(), file, eventlog.Filter{
		Type:      strings.TrimSpace(*eventType),
		OfferID:   normalizeID(*offerID),
		DisputeID: normalizeID(*disputeID),
	})
	if err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *outPath, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d events to %s\n", written, *outPath)
	return nil
}

// normalizeID matches the lower-case, unprefixed hex stored in the index.
func normalizeID(raw string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
