package escrow

import "fmt"

// OfferStatus represents the lifecycle states of a P2P sell offer.
type OfferStatus uint8

const (
	OfferStatusCreated OfferStatus = iota
	OfferStatusListed
	OfferStatusAccepted
	OfferStatusFiatSent
	OfferStatusReleaseReady
	OfferStatusDisputeOpened
	OfferStatusCompleted
	OfferStatusCancelled
)

var offerStatusNames = map[OfferStatus]string{
	OfferStatusCreated:       "created",
	OfferStatusListed:        "listed",
	OfferStatusAccepted:      "accepted",
	OfferStatusFiatSent:      "fiat_sent",
	OfferStatusReleaseReady:  "release_ready",
	OfferStatusDisputeOpened: "dispute_opened",
	OfferStatusCompleted:     "completed",
	OfferStatusCancelled:     "cancelled",
}

// offerTransitions is the only admission control for offer status changes.
// DisputeOpened requires a counterparty, so it is reachable only once the
// offer has been accepted.
var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferStatusCreated:       {OfferStatusListed, OfferStatusCancelled},
	OfferStatusListed:        {OfferStatusAccepted, OfferStatusCancelled},
	OfferStatusAccepted:      {OfferStatusFiatSent, OfferStatusDisputeOpened},
	OfferStatusFiatSent:      {OfferStatusReleaseReady, OfferStatusDisputeOpened},
	OfferStatusReleaseReady:  {OfferStatusCompleted, OfferStatusDisputeOpened},
	OfferStatusDisputeOpened: {OfferStatusCompleted},
}

func (s OfferStatus) String() string {
	if name, ok := offerStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("offer_status(%d)", uint8(s))
}

// Valid reports whether the status value is within the supported range.
func (s OfferStatus) Valid() bool {
	_, ok := offerStatusNames[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s OfferStatus) Terminal() bool {
	return s == OfferStatusCompleted || s == OfferStatusCancelled
}

// CanTransition reports whether next is reachable from s in one step.
func (s OfferStatus) CanTransition(next OfferStatus) bool {
	for _, allowed := range offerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DisputeStatus represents the lifecycle states of a dispute.
type DisputeStatus uint8

const (
	DisputeStatusOpened DisputeStatus = iota
	DisputeStatusJurorsAssigned
	DisputeStatusEvidenceSubmission
	DisputeStatusVoting
	DisputeStatusVerdictReached
	DisputeStatusResolved
)

var disputeStatusNames = map[DisputeStatus]string{
	DisputeStatusOpened:             "opened",
	DisputeStatusJurorsAssigned:     "jurors_assigned",
	DisputeStatusEvidenceSubmission: "evidence_submission",
	DisputeStatusVoting:             "voting",
	DisputeStatusVerdictReached:     "verdict_reached",
	DisputeStatusResolved:           "resolved",
}

var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusOpened:             {DisputeStatusJurorsAssigned},
	DisputeStatusJurorsAssigned:     {DisputeStatusEvidenceSubmission},
	DisputeStatusEvidenceSubmission: {DisputeStatusVoting},
	DisputeStatusVoting:             {DisputeStatusVerdictReached},
	DisputeStatusVerdictReached:     {DisputeStatusResolved},
}

func (s DisputeStatus) String() string {
	if name, ok := disputeStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("dispute_status(%d)", uint8(s))
}

// Valid reports whether the status value is within the supported range.
func (s DisputeStatus) Valid() bool {
	_, ok := disputeStatusNames[s]
	return ok
}

// CanTransition reports whether next is reachable from s in one step.
func (s DisputeStatus) CanTransition(next DisputeStatus) bool {
	for _, allowed := range disputeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Offer captures a seller's fixed-amount sell offer together with the custody
// vault that backs it. The identifier is the keccak256 hash of the seller and
// a caller-supplied nonce. Reserve is the minimum vault balance captured when
// the vault was opened.
type Offer struct {
	ID            [32]byte
	Seller        [20]byte
	Buyer         [20]byte
	Amount        uint64
	SecurityBond  uint64
	FiatAmount    uint64
	FiatCurrency  string
	PaymentMethod string
	Status        OfferStatus
	CreatedAt     int64
	UpdatedAt     int64
	DisputeID     [32]byte
	Vault         [20]byte
	Reserve       uint64
}

// Clone returns a copy of the offer so callers can safely mutate it.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

// HasBuyer reports whether a counterparty has accepted the offer.
func (o *Offer) HasBuyer() bool { return o != nil && o.Buyer != ([20]byte{}) }

// HasDispute reports whether a dispute has been linked to the offer.
func (o *Offer) HasDispute() bool { return o != nil && o.DisputeID != ([32]byte{}) }

// Principal returns amount plus security bond, failing on overflow.
func (o *Offer) Principal() (uint64, error) {
	return addUint64(o.Amount, o.SecurityBond)
}

// ExpectedVaultBalance returns amount + bond + reserve, failing on overflow.
func (o *Offer) ExpectedVaultBalance() (uint64, error) {
	principal, err := o.Principal()
	if err != nil {
		return 0, err
	}
	return addUint64(principal, o.Reserve)
}

// Dispute records a disagreement over an accepted offer and the jury that
// resolves it.
type Dispute struct {
	ID                  [32]byte
	OfferID             [32]byte
	Initiator           [20]byte
	Respondent          [20]byte
	Reason              string
	Status              DisputeStatus
	Jurors              [JurorCount][20]byte
	EvidenceBuyer       [MaxEvidenceItems]string
	EvidenceBuyerCount  uint8
	EvidenceSeller      [MaxEvidenceItems]string
	EvidenceSellerCount uint8
	VotesForBuyer       uint8
	VotesForSeller      uint8
	CreatedAt           int64
	ResolvedAt          int64
}

// Clone returns a copy of the dispute.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// IsJuror reports whether addr is one of the assigned jurors.
func (d *Dispute) IsJuror(addr [20]byte) bool {
	if d == nil || addr == ([20]byte{}) {
		return false
	}
	for _, juror := range d.Jurors {
		if juror == addr {
			return true
		}
	}
	return false
}

// IsParty reports whether addr is the initiator or the respondent.
func (d *Dispute) IsParty(addr [20]byte) bool {
	return d != nil && (addr == d.Initiator || addr == d.Respondent)
}

// BuyerEvidence returns the populated buyer-side evidence URLs.
func (d *Dispute) BuyerEvidence() []string {
	return append([]string(nil), d.EvidenceBuyer[:d.EvidenceBuyerCount]...)
}

// SellerEvidence returns the populated seller-side evidence URLs.
func (d *Dispute) SellerEvidence() []string {
	return append([]string(nil), d.EvidenceSeller[:d.EvidenceSellerCount]...)
}

// Vote is the create-once record of a juror's ballot.
type Vote struct {
	DisputeID [32]byte
	Juror     [20]byte
	ForBuyer  bool
	Timestamp int64
}

func addUint64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrMathOverflow
	}
	return sum, nil
}
