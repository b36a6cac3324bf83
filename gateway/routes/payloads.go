package routes

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"p2pescrow/core/types"
	"p2pescrow/native/escrow"
	"p2pescrow/native/reputation"
	"p2pescrow/native/rewards"
)

const requestBodyLimit = 64 << 10

func decodeBody(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, requestBodyLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseHash(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("invalid identifier %q", raw)
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

func parseApprovals(raw []string) ([][]byte, error) {
	out := make([][]byte, 0, len(raw))
	for i, entry := range raw {
		sig, err := hexutil.Decode(strings.TrimSpace(entry))
		if err != nil {
			return nil, fmt.Errorf("approvals[%d]: %w", i, err)
		}
		out = append(out, sig)
	}
	return out, nil
}

func hashHex(id [32]byte) string { return ethcommon.Hash(id).Hex() }

func addressHex(addr [20]byte) string { return ethcommon.Address(addr).Hex() }

type createOfferRequest struct {
	Nonce         uint64 `json:"nonce"`
	Amount        uint64 `json:"amount"`
	FiatAmount    uint64 `json:"fiatAmount"`
	FiatCurrency  string `json:"fiatCurrency"`
	PaymentMethod string `json:"paymentMethod"`
}

type acceptOfferRequest struct {
	SecurityBond uint64 `json:"securityBond"`
}

type releaseRequest struct {
	Buyer string `json:"buyer"`
}

type openDisputeRequest struct {
	Respondent string `json:"respondent"`
	Reason     string `json:"reason"`
}

type assignJurorsRequest struct {
	Jurors    []string `json:"jurors"`
	Approvals []string `json:"approvals"`
}

type evidenceRequest struct {
	URL string `json:"url"`
}

type voteRequest struct {
	ForBuyer *bool `json:"forBuyer"`
}

type verdictRequest struct {
	Buyer     string   `json:"buyer"`
	Seller    string   `json:"seller"`
	Approvals []string `json:"approvals"`
}

type rewardParamsRequest struct {
	RatePerTrade   uint64   `json:"ratePerTrade"`
	RatePerVote    uint64   `json:"ratePerVote"`
	MinTradeVolume uint64   `json:"minTradeVolume"`
	Approvals      []string `json:"approvals"`
}

type offerView struct {
	ID            string `json:"id"`
	Seller        string `json:"seller"`
	Buyer         string `json:"buyer,omitempty"`
	Amount        uint64 `json:"amount"`
	SecurityBond  uint64 `json:"securityBond"`
	FiatAmount    uint64 `json:"fiatAmount"`
	FiatCurrency  string `json:"fiatCurrency"`
	PaymentMethod string `json:"paymentMethod"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
	DisputeID     string `json:"disputeId,omitempty"`
	Vault         string `json:"vault"`
	Reserve       uint64 `json:"reserve"`
	VaultBalance  uint64 `json:"vaultBalance"`
}

func newOfferView(o *escrow.Offer, vaultBalance uint64) offerView {
	view := offerView{
		ID:            hashHex(o.ID),
		Seller:        addressHex(o.Seller),
		Amount:        o.Amount,
		SecurityBond:  o.SecurityBond,
		FiatAmount:    o.FiatAmount,
		FiatCurrency:  o.FiatCurrency,
		PaymentMethod: o.PaymentMethod,
		Status:        o.Status.String(),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Vault:         addressHex(o.Vault),
		Reserve:       o.Reserve,
		VaultBalance:  vaultBalance,
	}
	if o.HasBuyer() {
		view.Buyer = addressHex(o.Buyer)
	}
	if o.HasDispute() {
		view.DisputeID = hashHex(o.DisputeID)
	}
	return view
}

type disputeView struct {
	ID             string   `json:"id"`
	OfferID        string   `json:"offerId"`
	Initiator      string   `json:"initiator"`
	Respondent     string   `json:"respondent"`
	Reason         string   `json:"reason"`
	Status         string   `json:"status"`
	Jurors         []string `json:"jurors,omitempty"`
	BuyerEvidence  []string `json:"buyerEvidence"`
	SellerEvidence []string `json:"sellerEvidence"`
	VotesForBuyer  uint8    `json:"votesForBuyer"`
	VotesForSeller uint8    `json:"votesForSeller"`
	CreatedAt      int64    `json:"createdAt"`
	ResolvedAt     int64    `json:"resolvedAt,omitempty"`
}

func newDisputeView(d *escrow.Dispute) disputeView {
	view := disputeView{
		ID:             hashHex(d.ID),
		OfferID:        hashHex(d.OfferID),
		Initiator:      addressHex(d.Initiator),
		Respondent:     addressHex(d.Respondent),
		Reason:         d.Reason,
		Status:         d.Status.String(),
		BuyerEvidence:  d.BuyerEvidence(),
		SellerEvidence: d.SellerEvidence(),
		VotesForBuyer:  d.VotesForBuyer,
		VotesForSeller: d.VotesForSeller,
		CreatedAt:      d.CreatedAt,
		ResolvedAt:     d.ResolvedAt,
	}
	if d.Jurors[0] != ([20]byte{}) {
		view.Jurors = make([]string, 0, len(d.Jurors))
		for _, juror := range d.Jurors {
			view.Jurors = append(view.Jurors, addressHex(juror))
		}
	}
	return view
}

type voteView struct {
	DisputeID string `json:"disputeId"`
	Juror     string `json:"juror"`
	ForBuyer  bool   `json:"forBuyer"`
	Timestamp int64  `json:"timestamp"`
}

func newVoteView(v *escrow.Vote) voteView {
	return voteView{
		DisputeID: hashHex(v.DisputeID),
		Juror:     addressHex(v.Juror),
		ForBuyer:  v.ForBuyer,
		Timestamp: v.Timestamp,
	}
}

type accountView struct {
	Address       string `json:"address"`
	Balance       string `json:"balance"`
	RewardBalance string `json:"rewardBalance"`
	Nonce         uint64 `json:"nonce"`
}

func newAccountView(addr [20]byte, a *types.Account) accountView {
	return accountView{
		Address:       addressHex(addr),
		Balance:       a.Balance.String(),
		RewardBalance: a.RewardBalance.String(),
		Nonce:         a.Nonce,
	}
}

type reputationView struct {
	User             string `json:"user"`
	SuccessfulTrades uint64 `json:"successfulTrades"`
	DisputedTrades   uint64 `json:"disputedTrades"`
	DisputesWon      uint64 `json:"disputesWon"`
	DisputesLost     uint64 `json:"disputesLost"`
	Rating           uint8  `json:"rating"`
	LastUpdated      int64  `json:"lastUpdated"`
}

func newReputationView(r *reputation.Record) reputationView {
	return reputationView{
		User:             addressHex(r.User),
		SuccessfulTrades: r.SuccessfulTrades,
		DisputedTrades:   r.DisputedTrades,
		DisputesWon:      r.DisputesWon,
		DisputesLost:     r.DisputesLost,
		Rating:           r.Rating,
		LastUpdated:      r.LastUpdated,
	}
}

type rewardsView struct {
	User            string `json:"user"`
	TotalEarned     uint64 `json:"totalEarned"`
	TotalClaimed    uint64 `json:"totalClaimed"`
	Unclaimed       uint64 `json:"unclaimed"`
	TradingVolume   uint64 `json:"tradingVolume"`
	GovernanceVotes uint64 `json:"governanceVotes"`
	LastTradeReward int64  `json:"lastTradeReward"`
	LastVoteReward  int64  `json:"lastVoteReward"`
}

func newRewardsView(addr [20]byte, u *rewards.UserRewards) rewardsView {
	return rewardsView{
		User:            addressHex(addr),
		TotalEarned:     u.TotalEarned,
		TotalClaimed:    u.TotalClaimed,
		Unclaimed:       u.Unclaimed,
		TradingVolume:   u.TradingVolume,
		GovernanceVotes: u.GovernanceVotes,
		LastTradeReward: u.LastTradeReward,
		LastVoteReward:  u.LastVoteReward,
	}
}

type tokenView struct {
	RatePerTrade   uint64 `json:"ratePerTrade"`
	RatePerVote    uint64 `json:"ratePerVote"`
	MinTradeVolume uint64 `json:"minTradeVolume"`
	TotalSupply    uint64 `json:"totalSupply"`
	LastUpdated    int64  `json:"lastUpdated"`
}

func newTokenView(t *rewards.Token) tokenView {
	return tokenView{
		RatePerTrade:   t.Params.RatePerTrade,
		RatePerVote:    t.Params.RatePerVote,
		MinTradeVolume: t.Params.MinTradeVolume,
		TotalSupply:    t.TotalSupply,
		LastUpdated:    t.LastUpdated,
	}
}

type eventView struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
