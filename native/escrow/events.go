package escrow

import (
	"encoding/hex"
	"strconv"

	"p2pescrow/core/types"
)

const (
	EventTypeOfferCreated      = "escrow.offer.created"
	EventTypeOfferListed       = "escrow.offer.listed"
	EventTypeOfferAccepted     = "escrow.offer.accepted"
	EventTypeOfferFiatSent     = "escrow.offer.fiat_sent"
	EventTypeOfferFiatReceived = "escrow.offer.fiat_received"
	EventTypeOfferReleased     = "escrow.offer.released"
	EventTypeOfferCancelled    = "escrow.offer.cancelled"
	EventTypeDisputeOpened     = "escrow.dispute.opened"
	EventTypeJurorsAssigned    = "escrow.dispute.jurors_assigned"
	EventTypeEvidenceSubmitted = "escrow.dispute.evidence_submitted"
	EventTypeVoteCast          = "escrow.dispute.vote_cast"
	EventTypeVerdictExecuted   = "escrow.dispute.verdict_executed"
)

const (
	winnerBuyer  = "buyer"
	winnerSeller = "seller"
)

func hexID(id [32]byte) string { return hex.EncodeToString(id[:]) }
func hexAddr(addr [20]byte) string { return hex.EncodeToString(addr[:]) }

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerId"] = hexID(o.ID)
	attrs["seller"] = hexAddr(o.Seller)
	attrs["vault"] = hexAddr(o.Vault)
	attrs["amount"] = strconv.FormatUint(o.Amount, 10)
	attrs["status"] = o.Status.String()
	attrs["updatedAt"] = strconv.FormatInt(o.UpdatedAt, 10)
	if o.HasBuyer() {
		attrs["buyer"] = hexAddr(o.Buyer)
		attrs["securityBond"] = strconv.FormatUint(o.SecurityBond, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewOfferCreatedEvent returns the payload emitted when an offer is created
// and its vault funded.
func NewOfferCreatedEvent(o *Offer) *types.Event {
	evt := newOfferEvent(EventTypeOfferCreated, o)
	if o != nil {
		evt.Attributes["fiatAmount"] = strconv.FormatUint(o.FiatAmount, 10)
		evt.Attributes["fiatCurrency"] = o.FiatCurrency
		evt.Attributes["paymentMethod"] = o.PaymentMethod
		evt.Attributes["reserve"] = strconv.FormatUint(o.Reserve, 10)
	}
	return evt
}

func NewOfferListedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferListed, o)
}

func NewOfferAcceptedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferAccepted, o)
}

func NewFiatSentEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferFiatSent, o)
}

func NewFiatReceivedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferFiatReceived, o)
}

// NewReleasedEvent reports the units paid to the buyer on a normal release.
func NewReleasedEvent(o *Offer, paid uint64) *types.Event {
	evt := newOfferEvent(EventTypeOfferReleased, o)
	evt.Attributes["paid"] = strconv.FormatUint(paid, 10)
	return evt
}

// NewCancelledEvent reports the units refunded to the seller.
func NewCancelledEvent(o *Offer, refunded uint64) *types.Event {
	evt := newOfferEvent(EventTypeOfferCancelled, o)
	evt.Attributes["refunded"] = strconv.FormatUint(refunded, 10)
	return evt
}

func newDisputeEvent(eventType string, d *Dispute) *types.Event {
	attrs := make(map[string]string)
	if d == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["disputeId"] = hexID(d.ID)
	attrs["offerId"] = hexID(d.OfferID)
	attrs["status"] = d.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

func NewDisputeOpenedEvent(d *Dispute) *types.Event {
	evt := newDisputeEvent(EventTypeDisputeOpened, d)
	if d != nil {
		evt.Attributes["initiator"] = hexAddr(d.Initiator)
		evt.Attributes["respondent"] = hexAddr(d.Respondent)
		evt.Attributes["reason"] = d.Reason
		evt.Attributes["createdAt"] = strconv.FormatInt(d.CreatedAt, 10)
	}
	return evt
}

func NewJurorsAssignedEvent(d *Dispute) *types.Event {
	evt := newDisputeEvent(EventTypeJurorsAssigned, d)
	if d != nil {
		for i, juror := range d.Jurors {
			evt.Attributes["juror"+strconv.Itoa(i)] = hexAddr(juror)
		}
	}
	return evt
}

func NewEvidenceSubmittedEvent(d *Dispute, submitter [20]byte, side, url string) *types.Event {
	evt := newDisputeEvent(EventTypeEvidenceSubmitted, d)
	evt.Attributes["submitter"] = hexAddr(submitter)
	evt.Attributes["side"] = side
	evt.Attributes["url"] = url
	return evt
}

func NewVoteCastEvent(d *Dispute, v *Vote) *types.Event {
	evt := newDisputeEvent(EventTypeVoteCast, d)
	if d != nil {
		evt.Attributes["votesForBuyer"] = strconv.FormatUint(uint64(d.VotesForBuyer), 10)
		evt.Attributes["votesForSeller"] = strconv.FormatUint(uint64(d.VotesForSeller), 10)
	}
	if v != nil {
		evt.Attributes["juror"] = hexAddr(v.Juror)
		evt.Attributes["forBuyer"] = strconv.FormatBool(v.ForBuyer)
	}
	return evt
}

// NewVerdictExecutedEvent reports the winning side, the recipient and the
// units disbursed from the vault.
func NewVerdictExecutedEvent(d *Dispute, winner string, recipient [20]byte, paid uint64) *types.Event {
	evt := newDisputeEvent(EventTypeVerdictExecuted, d)
	evt.Attributes["winner"] = winner
	evt.Attributes["recipient"] = hexAddr(recipient)
	evt.Attributes["paid"] = strconv.FormatUint(paid, 10)
	if d != nil {
		evt.Attributes["resolvedAt"] = strconv.FormatInt(d.ResolvedAt, 10)
	}
	return evt
}
