package routes

import (
	"errors"
	"fmt"
	"net/http"

	"p2pescrow/native/escrow"
)

func (a *api) openDispute(w http.ResponseWriter, r *http.Request) {
	initiator, ok := caller(w, r)
	if !ok {
		return
	}
	offerID, ok := pathHash(w, r, "offerID")
	if !ok {
		return
	}
	var req openDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	respondent, err := parseAddress(req.Respondent)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	dispute, err := a.escrow.OpenDispute(offerID, initiator, respondent, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDisputeView(dispute))
}

func (a *api) assignJurors(w http.ResponseWriter, r *http.Request) {
	disputeID, ok := pathHash(w, r, "disputeID")
	if !ok {
		return
	}
	var req assignJurorsRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if len(req.Jurors) != escrow.JurorCount {
		writeBadRequest(w, fmt.Errorf("exactly %d jurors required, got %d", escrow.JurorCount, len(req.Jurors)))
		return
	}
	var jurors [escrow.JurorCount][20]byte
	for i, raw := range req.Jurors {
		addr, err := parseAddress(raw)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("jurors[%d]: %w", i, err))
			return
		}
		jurors[i] = addr
	}
	approvals, err := parseApprovals(req.Approvals)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	dispute, err := a.escrow.AssignJurors(disputeID, jurors, approvals)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeView(dispute))
}

func (a *api) submitEvidence(w http.ResponseWriter, r *http.Request) {
	submitter, ok := caller(w, r)
	if !ok {
		return
	}
	disputeID, ok := pathHash(w, r, "disputeID")
	if !ok {
		return
	}
	var req evidenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	dispute, err := a.escrow.SubmitEvidence(disputeID, submitter, req.URL)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeView(dispute))
}

func (a *api) castVote(w http.ResponseWriter, r *http.Request) {
	juror, ok := caller(w, r)
	if !ok {
		return
	}
	disputeID, ok := pathHash(w, r, "disputeID")
	if !ok {
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.ForBuyer == nil {
		writeBadRequest(w, errors.New("forBuyer is required"))
		return
	}
	dispute, err := a.escrow.CastVote(disputeID, juror, *req.ForBuyer)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeView(dispute))
}

func (a *api) executeVerdict(w http.ResponseWriter, r *http.Request) {
	disputeID, ok := pathHash(w, r, "disputeID")
	if !ok {
		return
	}
	var req verdictRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	buyer, err := parseAddress(req.Buyer)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	seller, err := parseAddress(req.Seller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	approvals, err := parseApprovals(req.Approvals)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	dispute, err := a.escrow.ExecuteVerdict(disputeID, buyer, seller, approvals)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeView(dispute))
}

func (a *api) getDispute(w http.ResponseWriter, r *http.Request) {
	disputeID, ok := pathHash(w, r, "disputeID")
	if !ok {
		return
	}
	dispute, err := a.escrow.Dispute(disputeID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeView(dispute))
}

func (a *api) getVote(w http.ResponseWriter, r *http.Request) {
	disputeID, ok := pathHash(w, r, "disputeID")
	if !ok {
		return
	}
	juror, ok := pathAddress(w, r, "juror")
	if !ok {
		return
	}
	vote, found, err := a.escrow.Vote(disputeID, juror)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, codeNotFound, errors.New("vote not found"))
		return
	}
	writeJSON(w, http.StatusOK, newVoteView(vote))
}

func (a *api) listJurorDisputes(w http.ResponseWriter, r *http.Request) {
	juror, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	disputes, err := a.escrow.DisputesForJuror(juror)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]disputeView, 0, len(disputes))
	for _, dispute := range disputes {
		views = append(views, newDisputeView(dispute))
	}
	writeJSON(w, http.StatusOK, views)
}
