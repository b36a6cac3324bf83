package escrow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// canonicalText validates UTF-8 and folds compatibility forms (fullwidth
// letters, ideographic spaces, ligatures) with NFKC before trimming.
func canonicalText(value string) (string, bool) {
	if !utf8.ValidString(value) {
		return "", false
	}
	return strings.TrimSpace(norm.NFKC.String(value)), true
}

// NormalizeCurrency folds the supplied fiat currency to NFKC and checks that
// it is a three-letter uppercase code. Fullwidth input such as "ＵＳＤ" is
// stored as "USD".
func NormalizeCurrency(code string) (string, error) {
	trimmed, ok := canonicalText(code)
	if !ok {
		return "", ErrInvalidUTF8
	}
	if len(trimmed) > MaxFiatCurrencyLen {
		return "", fmt.Errorf("%w: fiat currency exceeds %d bytes", ErrInputTooLong, MaxFiatCurrencyLen)
	}
	if len(trimmed) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrencyCode, trimmed)
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] < 'A' || trimmed[i] > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrencyCode, trimmed)
		}
	}
	return trimmed, nil
}

// normalizeText canonicalises value and enforces a non-empty string whose
// normalized form fits in max bytes.
func normalizeText(field, value string, max int) (string, error) {
	trimmed, ok := canonicalText(value)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidUTF8, field)
	}
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyInput, field)
	}
	if len(trimmed) > max {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrInputTooLong, field, max)
	}
	return trimmed, nil
}

// NormalizePaymentMethod returns the stored form of an offer's payment method.
func NormalizePaymentMethod(method string) (string, error) {
	return normalizeText("payment method", method, MaxPaymentMethodLen)
}

// NormalizeDisputeReason returns the stored form of a dispute reason.
func NormalizeDisputeReason(reason string) (string, error) {
	return normalizeText("dispute reason", reason, MaxDisputeReasonLen)
}

// NormalizeEvidenceURL returns the stored form of an evidence link.
func NormalizeEvidenceURL(url string) (string, error) {
	return normalizeText("evidence url", url, MaxEvidenceURLLen)
}
