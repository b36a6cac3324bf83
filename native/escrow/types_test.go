package escrow

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfferStatusTransitions(t *testing.T) {
	allowed := map[OfferStatus][]OfferStatus{
		OfferStatusCreated:       {OfferStatusListed, OfferStatusCancelled},
		OfferStatusListed:        {OfferStatusAccepted, OfferStatusCancelled},
		OfferStatusAccepted:      {OfferStatusFiatSent, OfferStatusDisputeOpened},
		OfferStatusFiatSent:      {OfferStatusReleaseReady, OfferStatusDisputeOpened},
		OfferStatusReleaseReady:  {OfferStatusCompleted, OfferStatusDisputeOpened},
		OfferStatusDisputeOpened: {OfferStatusCompleted},
	}
	for from := OfferStatusCreated; from <= OfferStatusCancelled; from++ {
		for to := OfferStatusCreated; to <= OfferStatusCancelled; to++ {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			require.Equalf(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	require.True(t, OfferStatusCompleted.Terminal())
	require.True(t, OfferStatusCancelled.Terminal())
	require.False(t, OfferStatusDisputeOpened.Terminal())
	require.False(t, OfferStatus(42).Valid())
	require.Equal(t, "offer_status(42)", OfferStatus(42).String())
}

func TestDisputeStatusIsLinear(t *testing.T) {
	for from := DisputeStatusOpened; from <= DisputeStatusResolved; from++ {
		for to := DisputeStatusOpened; to <= DisputeStatusResolved; to++ {
			require.Equalf(t, to == from+1, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestExpectedVaultBalanceOverflow(t *testing.T) {
	offer := &Offer{Amount: math.MaxUint64, SecurityBond: 1}
	_, err := offer.ExpectedVaultBalance()
	require.ErrorIs(t, err, ErrMathOverflow)

	offer = &Offer{Amount: 10, SecurityBond: 5, Reserve: 3}
	total, err := offer.ExpectedVaultBalance()
	require.NoError(t, err)
	require.Equal(t, uint64(18), total)
}

func TestDeterministicIdentifiers(t *testing.T) {
	seller := newTestAddress(0x01)
	require.Equal(t, OfferID(seller, 1), OfferID(seller, 1))
	require.NotEqual(t, OfferID(seller, 1), OfferID(seller, 2))
	offerID := OfferID(seller, 1)
	require.NotEqual(t, DisputeID(offerID), offerID)
	require.NotEqual(t, VaultAddress(offerID), VaultAddress(OfferID(seller, 2)))
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" EUR ")
	require.NoError(t, err)
	require.Equal(t, "EUR", code)

	for _, bad := range []string{"", "eu", "EURO", "E1R", "usd"} {
		_, err := NormalizeCurrency(bad)
		require.ErrorIsf(t, err, ErrInvalidCurrencyCode, "code %q", bad)
	}
	_, err = NormalizeCurrency(strings.Repeat("A", MaxFiatCurrencyLen+1))
	require.ErrorIs(t, err, ErrInputTooLong)
	_, err = NormalizeCurrency("\xff\xfeA")
	require.ErrorIs(t, err, ErrInvalidUTF8)

	code, err = NormalizeCurrency("\uff35\uff33\uff24")
	require.NoError(t, err)
	require.Equal(t, "USD", code)
	_, err = NormalizeCurrency("\uff55\uff53\uff44")
	require.ErrorIs(t, err, ErrInvalidCurrencyCode)
}

func TestNormalizeText(t *testing.T) {
	method, err := NormalizePaymentMethod(strings.Repeat("p", MaxPaymentMethodLen))
	require.NoError(t, err)
	require.Len(t, method, MaxPaymentMethodLen)

	_, err = NormalizeEvidenceURL("\xc3\x28")
	require.ErrorIs(t, err, ErrInvalidUTF8)
	_, err = NormalizeDisputeReason("\t\n")
	require.ErrorIs(t, err, ErrEmptyInput)
	_, err = NormalizeDisputeReason(strings.Repeat("r", MaxDisputeReasonLen+1))
	require.ErrorIs(t, err, ErrInputTooLong)

	method, err = NormalizePaymentMethod("\u3000\uff33\uff25\uff30\uff21 transfer\u3000")
	require.NoError(t, err)
	require.Equal(t, "SEPA transfer", method)
	_, err = NormalizeDisputeReason("\u3000\u3000")
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{nil, ClassNone},
		{ErrInvalidOfferStatus, ClassStatus},
		{ErrUnauthorized, ClassAuth},
		{ErrInputTooLong, ClassValidation},
		{ErrTooManyEvidenceItems, ClassLimit},
		{ErrInsufficientFunds, ClassAccounting},
		{ErrAlreadyVoted, ClassConflict},
		{ErrDisputeExpired, ClassExpired},
		{ErrOfferNotFound, ClassNotFound},
		{errors.New("disk is on fire"), ClassInternal},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.want, Classify(tc.err), "classify %v", tc.err)
	}
	require.False(t, Retryable(ErrTooManyEvidenceItems))
	require.True(t, Retryable(ErrTooManyRequests))
}
