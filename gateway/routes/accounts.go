package routes

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"p2pescrow/native/rewards"
	"p2pescrow/storage/eventlog"
)

var errNotConfigured = errors.New("service not configured")

func (a *api) getAccount(w http.ResponseWriter, r *http.Request) {
	if a.accounts == nil {
		writeJSONError(w, http.StatusNotImplemented, codeInternal, errNotConfigured)
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	account, err := a.accounts.Account(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(addr, account))
}

func (a *api) getReputation(w http.ResponseWriter, r *http.Request) {
	if a.reputation == nil {
		writeJSONError(w, http.StatusNotImplemented, codeInternal, errNotConfigured)
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	record, err := a.reputation.Get(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReputationView(record))
}

func (a *api) getRewards(w http.ResponseWriter, r *http.Request) {
	if a.rewards == nil {
		writeJSONError(w, http.StatusNotImplemented, codeInternal, errNotConfigured)
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	totals, err := a.rewards.User(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRewardsView(addr, totals))
}

func (a *api) getRewardToken(w http.ResponseWriter, r *http.Request) {
	if a.rewards == nil {
		writeJSONError(w, http.StatusNotImplemented, codeInternal, errNotConfigured)
		return
	}
	token, err := a.rewards.Token()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenView(token))
}

type claimResponse struct {
	User    string `json:"user"`
	Claimed uint64 `json:"claimed"`
}

func (a *api) claimRewards(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	if a.rewards == nil {
		writeJSONError(w, http.StatusNotImplemented, codeInternal, errNotConfigured)
		return
	}
	claimed, err := a.rewards.Claim(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{User: addressHex(user), Claimed: claimed})
}

func (a *api) updateRewardParams(w http.ResponseWriter, r *http.Request) {
	if a.rewards == nil {
		writeJSONError(w, http.StatusNotImplemented, codeInternal, errNotConfigured)
		return
	}
	var req rewardParamsRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	approvals, err := parseApprovals(req.Approvals)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	params := rewards.Params{
		RatePerTrade:   req.RatePerTrade,
		RatePerVote:    req.RatePerVote,
		MinTradeVolume: req.MinTradeVolume,
	}
	if err := a.rewards.UpdateParams(params, approvals); err != nil {
		writeEngineError(w, err)
		return
	}
	a.getRewardToken(w, r)
}

type eventRecordView struct {
	ID         string            `json:"id"`
	Seq        int64             `json:"seq"`
	Type       string            `json:"type"`
	OfferID    string            `json:"offerId,omitempty"`
	DisputeID  string            `json:"disputeId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  string            `json:"createdAt"`
}

func (a *api) listEvents(w http.ResponseWriter, r *http.Request) {
	if a.eventLog == nil {
		writeJSONError(w, http.StatusNotImplemented, codeInternal, errNotConfigured)
		return
	}
	query := r.URL.Query()
	filter := eventlog.Filter{
		Type:      strings.TrimSpace(query.Get("type")),
		OfferID:   strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query.Get("offerId")), "0x")),
		DisputeID: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query.Get("disputeId")), "0x")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeBadRequest(w, errors.New("limit must be a positive integer"))
			return
		}
		if limit > eventlog.MaxListLimit {
			limit = eventlog.MaxListLimit
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		after, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			writeBadRequest(w, errors.New("after must be a non-negative sequence number"))
			return
		}
		filter.AfterSeq = after
	}
	records, err := a.eventLog.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	views := make([]eventRecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, eventRecordView{
			ID:         rec.ID.String(),
			Seq:        rec.Seq,
			Type:       rec.Type,
			OfferID:    rec.OfferID,
			DisputeID:  rec.DisputeID,
			Attributes: rec.Attributes,
			CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, views)
}
