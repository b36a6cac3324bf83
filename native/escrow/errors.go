package escrow

import (
	"errors"
	"fmt"

	"p2pescrow/core/state"
	nativecommon "p2pescrow/native/common"
)

var (
	ErrInvalidOfferStatus    = errors.New("escrow: invalid offer status")
	ErrInvalidDisputeStatus  = errors.New("escrow: invalid dispute status")
	ErrUnauthorized          = errors.New("escrow: unauthorized")
	ErrInsufficientFunds     = errors.New("escrow: insufficient funds")
	ErrAlreadyVoted          = errors.New("escrow: juror already voted")
	ErrNotAJuror             = errors.New("escrow: caller is not a juror")
	ErrDisputeAlreadyExists  = errors.New("escrow: dispute already exists")
	ErrInvalidAmount         = errors.New("escrow: invalid amount")
	ErrInputTooLong          = errors.New("escrow: input too long")
	ErrAdminRequired         = errors.New("escrow: admin approval required")
	ErrTooManyEvidenceItems  = errors.New("escrow: too many evidence items")
	ErrInvalidUTF8           = errors.New("escrow: invalid utf-8")
	ErrTiedVote              = errors.New("escrow: tied vote")
	ErrMathOverflow          = errors.New("escrow: math overflow")
	ErrTooManyRequests       = errors.New("escrow: too many requests")
	ErrInvalidEscrowBalance  = errors.New("escrow: invalid escrow balance")
	ErrDisputeExpired        = errors.New("escrow: dispute expired")
	ErrInvalidCurrencyCode   = errors.New("escrow: invalid currency code")
	ErrInvalidJuror          = errors.New("escrow: invalid juror")
	ErrOfferNotFound         = errors.New("escrow: offer not found")
	ErrDisputeNotFound       = errors.New("escrow: dispute not found")
	ErrOfferExists           = errors.New("escrow: offer already exists")
	ErrEmptyInput            = errors.New("escrow: input must not be empty")
	ErrReserveUnavailable    = errors.New("escrow: minimum reserve unavailable")
	errNilStore              = errors.New("escrow: state store not configured")
	errNilAuthorizer         = errors.New("escrow: authorizer not configured")
	errVaultAuthorityInvalid = fmt.Errorf("%w: vault authority does not match vault", ErrUnauthorized)
)

// Class groups errors by how a caller should react to them.
type Class string

const (
	ClassNone       Class = ""
	ClassStatus     Class = "status"
	ClassAuth       Class = "auth"
	ClassValidation Class = "validation"
	ClassLimit      Class = "limit"
	ClassAccounting Class = "accounting"
	ClassConflict   Class = "conflict"
	ClassExpired    Class = "expired"
	ClassNotFound   Class = "not_found"
	ClassPaused     Class = "paused"
	ClassInternal   Class = "internal"
)

// Classify maps an engine error onto its Class. Unknown errors are internal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrInvalidOfferStatus), errors.Is(err, ErrInvalidDisputeStatus):
		return ClassStatus
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotAJuror), errors.Is(err, ErrAdminRequired):
		return ClassAuth
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInputTooLong), errors.Is(err, ErrInvalidUTF8),
		errors.Is(err, ErrInvalidCurrencyCode), errors.Is(err, ErrInvalidJuror), errors.Is(err, ErrEmptyInput):
		return ClassValidation
	case errors.Is(err, ErrTooManyEvidenceItems), errors.Is(err, ErrTooManyRequests):
		return ClassLimit
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInvalidEscrowBalance), errors.Is(err, ErrMathOverflow),
		errors.Is(err, state.ErrInsufficientBalance), errors.Is(err, state.ErrBalanceOverflow):
		return ClassAccounting
	case errors.Is(err, ErrAlreadyVoted), errors.Is(err, ErrDisputeAlreadyExists), errors.Is(err, ErrOfferExists),
		errors.Is(err, ErrTiedVote):
		return ClassConflict
	case errors.Is(err, ErrDisputeExpired):
		return ClassExpired
	case errors.Is(err, ErrOfferNotFound), errors.Is(err, ErrDisputeNotFound):
		return ClassNotFound
	case errors.Is(err, nativecommon.ErrModulePaused):
		return ClassPaused
	default:
		return ClassInternal
	}
}

// Retryable reports whether the same request may succeed later without any
// change in its inputs.
func Retryable(err error) bool {
	return errors.Is(err, ErrTooManyRequests) || errors.Is(err, nativecommon.ErrModulePaused)
}
