package routes

import (
	"fmt"
	"net/http"
	"strings"

	"p2pescrow/native/escrow"
)

func (a *api) respondOffer(w http.ResponseWriter, status int, offer *escrow.Offer) {
	balance, err := a.escrow.VaultBalance(offer.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, status, newOfferView(offer, balance))
}

func (a *api) createOffer(w http.ResponseWriter, r *http.Request) {
	seller, ok := caller(w, r)
	if !ok {
		return
	}
	var req createOfferRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	offer, err := a.escrow.CreateOffer(seller, req.Nonce, req.Amount, req.FiatAmount, req.FiatCurrency, req.PaymentMethod)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	a.respondOffer(w, http.StatusCreated, offer)
}

// offerAction adapts the caller-only offer transitions.
func (a *api) offerAction(fn func(offerID [32]byte, caller [20]byte) (*escrow.Offer, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		offerID, ok := pathHash(w, r, "offerID")
		if !ok {
			return
		}
		offer, err := fn(offerID, who)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		a.respondOffer(w, http.StatusOK, offer)
	}
}

func (a *api) listOffer(w http.ResponseWriter, r *http.Request) {
	a.offerAction(a.escrow.ListOffer)(w, r)
}

func (a *api) markFiatSent(w http.ResponseWriter, r *http.Request) {
	a.offerAction(a.escrow.MarkFiatSent)(w, r)
}

func (a *api) confirmFiatReceipt(w http.ResponseWriter, r *http.Request) {
	a.offerAction(a.escrow.ConfirmFiatReceipt)(w, r)
}

func (a *api) cancelOffer(w http.ResponseWriter, r *http.Request) {
	a.offerAction(a.escrow.CancelOffer)(w, r)
}

func (a *api) acceptOffer(w http.ResponseWriter, r *http.Request) {
	buyer, ok := caller(w, r)
	if !ok {
		return
	}
	offerID, ok := pathHash(w, r, "offerID")
	if !ok {
		return
	}
	var req acceptOfferRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	offer, err := a.escrow.AcceptOffer(offerID, buyer, req.SecurityBond)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	a.respondOffer(w, http.StatusOK, offer)
}

func (a *api) releaseFunds(w http.ResponseWriter, r *http.Request) {
	seller, ok := caller(w, r)
	if !ok {
		return
	}
	offerID, ok := pathHash(w, r, "offerID")
	if !ok {
		return
	}
	var req releaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	buyer, err := parseAddress(req.Buyer)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	offer, err := a.escrow.ReleaseFunds(offerID, seller, buyer)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	a.respondOffer(w, http.StatusOK, offer)
}

func (a *api) getOffer(w http.ResponseWriter, r *http.Request) {
	offerID, ok := pathHash(w, r, "offerID")
	if !ok {
		return
	}
	offer, err := a.escrow.Offer(offerID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	a.respondOffer(w, http.StatusOK, offer)
}

// listOffers returns the offers an account sold (role=seller, default) or
// accepted (role=buyer).
func (a *api) listOffers(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var (
		offers []*escrow.Offer
		err    error
	)
	switch role := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("role"))); role {
	case "", "seller":
		offers, err = a.escrow.OffersBySeller(addr)
	case "buyer":
		offers, err = a.escrow.OffersByBuyer(addr)
	default:
		writeBadRequest(w, fmt.Errorf("unknown role %q", role))
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]offerView, 0, len(offers))
	for _, offer := range offers {
		balance, err := a.escrow.VaultBalance(offer.ID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		views = append(views, newOfferView(offer, balance))
	}
	writeJSON(w, http.StatusOK, views)
}
