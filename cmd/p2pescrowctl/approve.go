package main

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"p2pescrow/native/authority"
	"p2pescrow/native/escrow"
	"p2pescrow/native/rewards"
)

// approval is a signed admin action ready to be placed in a request's
// approvals list.
type approval struct {
	Action    string `json:"action"`
	Subject   string `json:"subject"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

func sign(key *ecdsa.PrivateKey, action string, subject [32]byte) (*approval, error) {
	sig, err := authority.Sign(key, action, subject)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", action, err)
	}
	return &approval{
		Action:    action,
		Subject:   hexutil.Encode(subject[:]),
		Signer:    ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		Signature: hexutil.Encode(sig),
	}, nil
}

func approveJurors(key *ecdsa.PrivateKey, dispute, jurorList string) (*approval, error) {
	disputeID, err := parseHash(dispute)
	if err != nil {
		return nil, fmt.Errorf("dispute: %w", err)
	}
	parts := strings.Split(jurorList, ",")
	if len(parts) != escrow.JurorCount {
		return nil, fmt.Errorf("exactly %d jurors required, got %d", escrow.JurorCount, len(parts))
	}
	var jurors [escrow.JurorCount][20]byte
	for i, raw := range parts {
		addr, err := parseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("juror %d: %w", i, err)
		}
		jurors[i] = addr
	}
	return sign(key, escrow.ActionAssignJurors, escrow.JurorAssignmentSubject(disputeID, jurors))
}

func approveVerdict(key *ecdsa.PrivateKey, dispute, buyer, seller string) (*approval, error) {
	disputeID, err := parseHash(dispute)
	if err != nil {
		return nil, fmt.Errorf("dispute: %w", err)
	}
	buyerAddr, err := parseAddress(buyer)
	if err != nil {
		return nil, fmt.Errorf("buyer: %w", err)
	}
	sellerAddr, err := parseAddress(seller)
	if err != nil {
		return nil, fmt.Errorf("seller: %w", err)
	}
	return sign(key, escrow.ActionExecuteVerdict, escrow.VerdictSubject(disputeID, buyerAddr, sellerAddr))
}

// approveRewardParams signs a rate change against the token's current
// LastUpdated value.
func approveRewardParams(key *ecdsa.PrivateKey, params rewards.Params, lastUpdated int64) (*approval, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if lastUpdated < 0 {
		return nil, fmt.Errorf("last updated cannot be negative")
	}
	return sign(key, rewards.ActionUpdateParams, rewards.ParamsSubject(params, lastUpdated))
}

func parseHash(raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", raw)
	}
	return ethcommon.HexToAddress(trimmed), nil
}
