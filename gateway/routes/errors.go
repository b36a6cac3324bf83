package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"p2pescrow/native/escrow"
	"p2pescrow/native/reputation"
	"p2pescrow/native/rewards"
)

// errorBody is the JSON shape of every failed request. Code is stable and
// safe to branch on; Error is for humans.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

const (
	codeInvalidArgument = "invalid_argument"
	codeInvalidStatus   = "invalid_status"
	codeUnauthorized    = "unauthorized"
	codeLimitExceeded   = "limit_exceeded"
	codeRateLimited     = "rate_limited"
	codeAccounting      = "accounting"
	codeConflict        = "conflict"
	codeExpired         = "expired"
	codeNotFound        = "not_found"
	codePaused          = "paused"
	codeInternal        = "internal"
	codeUnauthenticated = "unauthenticated"
)

type errorMapping struct {
	status int
	code   string
}

var classMappings = map[escrow.Class]errorMapping{
	escrow.ClassStatus:     {http.StatusConflict, codeInvalidStatus},
	escrow.ClassAuth:       {http.StatusForbidden, codeUnauthorized},
	escrow.ClassValidation: {http.StatusBadRequest, codeInvalidArgument},
	escrow.ClassLimit:      {http.StatusUnprocessableEntity, codeLimitExceeded},
	escrow.ClassAccounting: {http.StatusUnprocessableEntity, codeAccounting},
	escrow.ClassConflict:   {http.StatusConflict, codeConflict},
	escrow.ClassExpired:    {http.StatusGone, codeExpired},
	escrow.ClassNotFound:   {http.StatusNotFound, codeNotFound},
	escrow.ClassPaused:     {http.StatusServiceUnavailable, codePaused},
	escrow.ClassInternal:   {http.StatusInternalServerError, codeInternal},
}

// mapError resolves the HTTP status and stable code for an engine error.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, rewards.ErrNoRewardsToClaim):
		return http.StatusConflict, codeConflict
	case errors.Is(err, rewards.ErrTooManyRequests):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, rewards.ErrInvalidParams), errors.Is(err, rewards.ErrUserRequired),
		errors.Is(err, reputation.ErrUserRequired):
		return http.StatusBadRequest, codeInvalidArgument
	case errors.Is(err, rewards.ErrAdminRequired):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, rewards.ErrMathOverflow), errors.Is(err, reputation.ErrCounterOverflow):
		return http.StatusUnprocessableEntity, codeAccounting
	}
	if escrow.Retryable(err) && escrow.Classify(err) == escrow.ClassLimit {
		return http.StatusTooManyRequests, codeRateLimited
	}
	if mapping, ok := classMappings[escrow.Classify(err)]; ok {
		return mapping.status, mapping.code
	}
	return http.StatusInternalServerError, codeInternal
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	retryable := escrow.Retryable(err) || errors.Is(err, rewards.ErrTooManyRequests)
	writeJSON(w, status, errorBody{Error: message, Code: code, Retryable: retryable})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, codeInvalidArgument, err)
}

func writeUnauthenticated(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, codeUnauthenticated, errors.New("caller address required"))
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusInternalServerError, codeInternal, err)
}

func writeJSONError(w http.ResponseWriter, status int, code string, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
