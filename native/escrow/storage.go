package escrow

import (
	"errors"
	"fmt"

	"p2pescrow/core/state"
	nativecommon "p2pescrow/native/common"
)

var (
	offerPrefix       = []byte("escrow/offer/")
	disputePrefix     = []byte("escrow/dispute/")
	votePrefix        = []byte("escrow/vote/")
	sellerIndexPrefix = []byte("escrow/index/seller/")
	buyerIndexPrefix  = []byte("escrow/index/buyer/")
	jurorIndexPrefix  = []byte("escrow/index/juror/")
	quotaPrefix       = []byte("escrow/quota/")
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return buf
}

func offerKey(id [32]byte) []byte { return prefixedKey(offerPrefix, id[:]) }
func disputeKey(id [32]byte) []byte { return prefixedKey(disputePrefix, id[:]) }
func sellerIndexKey(a [20]byte) []byte { return prefixedKey(sellerIndexPrefix, a[:]) }
func buyerIndexKey(a [20]byte) []byte { return prefixedKey(buyerIndexPrefix, a[:]) }
func jurorIndexKey(a [20]byte) []byte { return prefixedKey(jurorIndexPrefix, a[:]) }

func voteKey(disputeID [32]byte, juror [20]byte) []byte {
	return prefixedKey(votePrefix, disputeID[:], juror[:])
}

func quotaKey(module string, addr [20]byte) []byte {
	return prefixedKey(quotaPrefix, []byte(module), []byte{'/'}, addr[:])
}

// RLP cannot encode signed integers so timestamps are persisted as uint64.
type storedOffer struct {
	ID            [32]byte
	Seller        [20]byte
	Buyer         [20]byte
	Amount        uint64
	SecurityBond  uint64
	FiatAmount    uint64
	FiatCurrency  string
	PaymentMethod string
	Status        uint8
	CreatedAt     uint64
	UpdatedAt     uint64
	DisputeID     [32]byte
	Vault         [20]byte
	Reserve       uint64
}

type storedDispute struct {
	ID                  [32]byte
	OfferID             [32]byte
	Initiator           [20]byte
	Respondent          [20]byte
	Reason              string
	Status              uint8
	Jurors              [JurorCount][20]byte
	EvidenceBuyer       [MaxEvidenceItems]string
	EvidenceBuyerCount  uint8
	EvidenceSeller      [MaxEvidenceItems]string
	EvidenceSellerCount uint8
	VotesForBuyer       uint8
	VotesForSeller      uint8
	CreatedAt           uint64
	ResolvedAt          uint64
}

type storedVote struct {
	DisputeID [32]byte
	Juror     [20]byte
	ForBuyer  bool
	Timestamp uint64
}

type storedQuota struct {
	ReqCount   uint32
	VolumeUsed uint64
	EpochID    uint64
	LastAt     uint64
}

func toUnix(v uint64) int64 { return int64(v) }

func fromUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func newStoredOffer(o *Offer) storedOffer {
	return storedOffer{
		ID:            o.ID,
		Seller:        o.Seller,
		Buyer:         o.Buyer,
		Amount:        o.Amount,
		SecurityBond:  o.SecurityBond,
		FiatAmount:    o.FiatAmount,
		FiatCurrency:  o.FiatCurrency,
		PaymentMethod: o.PaymentMethod,
		Status:        uint8(o.Status),
		CreatedAt:     fromUnix(o.CreatedAt),
		UpdatedAt:     fromUnix(o.UpdatedAt),
		DisputeID:     o.DisputeID,
		Vault:         o.Vault,
		Reserve:       o.Reserve,
	}
}

func (s storedOffer) toOffer() *Offer {
	return &Offer{
		ID:            s.ID,
		Seller:        s.Seller,
		Buyer:         s.Buyer,
		Amount:        s.Amount,
		SecurityBond:  s.SecurityBond,
		FiatAmount:    s.FiatAmount,
		FiatCurrency:  s.FiatCurrency,
		PaymentMethod: s.PaymentMethod,
		Status:        OfferStatus(s.Status),
		CreatedAt:     toUnix(s.CreatedAt),
		UpdatedAt:     toUnix(s.UpdatedAt),
		DisputeID:     s.DisputeID,
		Vault:         s.Vault,
		Reserve:       s.Reserve,
	}
}

func newStoredDispute(d *Dispute) storedDispute {
	return storedDispute{
		ID:                  d.ID,
		OfferID:             d.OfferID,
		Initiator:           d.Initiator,
		Respondent:          d.Respondent,
		Reason:              d.Reason,
		Status:              uint8(d.Status),
		Jurors:              d.Jurors,
		EvidenceBuyer:       d.EvidenceBuyer,
		EvidenceBuyerCount:  d.EvidenceBuyerCount,
		EvidenceSeller:      d.EvidenceSeller,
		EvidenceSellerCount: d.EvidenceSellerCount,
		VotesForBuyer:       d.VotesForBuyer,
		VotesForSeller:      d.VotesForSeller,
		CreatedAt:           fromUnix(d.CreatedAt),
		ResolvedAt:          fromUnix(d.ResolvedAt),
	}
}

func (s storedDispute) toDispute() *Dispute {
	return &Dispute{
		ID:                  s.ID,
		OfferID:             s.OfferID,
		Initiator:           s.Initiator,
		Respondent:          s.Respondent,
		Reason:              s.Reason,
		Status:              DisputeStatus(s.Status),
		Jurors:              s.Jurors,
		EvidenceBuyer:       s.EvidenceBuyer,
		EvidenceBuyerCount:  s.EvidenceBuyerCount,
		EvidenceSeller:      s.EvidenceSeller,
		EvidenceSellerCount: s.EvidenceSellerCount,
		VotesForBuyer:       s.VotesForBuyer,
		VotesForSeller:      s.VotesForSeller,
		CreatedAt:           toUnix(s.CreatedAt),
		ResolvedAt:          toUnix(s.ResolvedAt),
	}
}

// kvState is the key-value surface of a state transaction used for records.
type kvState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVCreate(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
}

var _ kvState = (*state.Tx)(nil)

func loadOffer(kv kvState, id [32]byte) (*Offer, error) {
	var stored storedOffer
	ok, err := kv.KVGet(offerKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return stored.toOffer(), nil
}

func putOffer(kv kvState, o *Offer) error {
	if !o.Status.Valid() {
		return fmt.Errorf("escrow: refusing to persist invalid offer status %d", o.Status)
	}
	return kv.KVPut(offerKey(o.ID), newStoredOffer(o))
}

func createOffer(kv kvState, o *Offer) error {
	if err := kv.KVCreate(offerKey(o.ID), newStoredOffer(o)); err != nil {
		if errors.Is(err, state.ErrKeyExists) {
			return ErrOfferExists
		}
		return err
	}
	return kv.KVAppend(sellerIndexKey(o.Seller), o.ID[:])
}

func loadDispute(kv kvState, id [32]byte) (*Dispute, error) {
	var stored storedDispute
	ok, err := kv.KVGet(disputeKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDisputeNotFound
	}
	return stored.toDispute(), nil
}

func putDispute(kv kvState, d *Dispute) error {
	if !d.Status.Valid() {
		return fmt.Errorf("escrow: refusing to persist invalid dispute status %d", d.Status)
	}
	return kv.KVPut(disputeKey(d.ID), newStoredDispute(d))
}

func createDispute(kv kvState, d *Dispute) error {
	if err := kv.KVCreate(disputeKey(d.ID), newStoredDispute(d)); err != nil {
		if errors.Is(err, state.ErrKeyExists) {
			return ErrDisputeAlreadyExists
		}
		return err
	}
	return nil
}

// createVote persists the ballot, failing if the juror already voted on the
// dispute.
func createVote(kv kvState, v *Vote) error {
	stored := storedVote{
		DisputeID: v.DisputeID,
		Juror:     v.Juror,
		ForBuyer:  v.ForBuyer,
		Timestamp: fromUnix(v.Timestamp),
	}
	if err := kv.KVCreate(voteKey(v.DisputeID, v.Juror), stored); err != nil {
		if errors.Is(err, state.ErrKeyExists) {
			return ErrAlreadyVoted
		}
		return err
	}
	return nil
}

func loadVote(kv kvState, disputeID [32]byte, juror [20]byte) (*Vote, bool, error) {
	var stored storedVote
	ok, err := kv.KVGet(voteKey(disputeID, juror), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &Vote{
		DisputeID: stored.DisputeID,
		Juror:     stored.Juror,
		ForBuyer:  stored.ForBuyer,
		Timestamp: toUnix(stored.Timestamp),
	}, true, nil
}

func loadIndex(kv kvState, key []byte) ([][32]byte, error) {
	raw, err := kv.KVGetList(key)
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			continue
		}
		var id [32]byte
		copy(id[:], entry)
		out = append(out, id)
	}
	return out, nil
}

// consumeQuota charges one request (and volume) against the address quota
// for module, mapping exhaustion onto ErrTooManyRequests.
func consumeQuota(kv kvState, module string, q nativecommon.Quota, addr [20]byte, now int64, volume uint64) error {
	if q == (nativecommon.Quota{}) {
		return nil
	}
	key := quotaKey(module, addr)
	var stored storedQuota
	if _, err := kv.KVGet(key, &stored); err != nil {
		return err
	}
	prev := nativecommon.QuotaNow{
		ReqCount:   stored.ReqCount,
		VolumeUsed: stored.VolumeUsed,
		EpochID:    stored.EpochID,
		LastAt:     stored.LastAt,
	}
	next, err := nativecommon.CheckQuota(q, now, prev, 1, volume)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTooManyRequests, module, err)
	}
	return kv.KVPut(key, storedQuota{
		ReqCount:   next.ReqCount,
		VolumeUsed: next.VolumeUsed,
		EpochID:    next.EpochID,
		LastAt:     next.LastAt,
	})
}
