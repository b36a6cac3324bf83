package authority

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNoAdmins         = errors.New("authority: admin set empty")
	ErrInvalidThreshold = errors.New("authority: invalid threshold")
	ErrSignatureInvalid = errors.New("authority: signature invalid")
	ErrUnknownSigner    = errors.New("authority: signer is not an admin")
	ErrDuplicateSigner  = errors.New("authority: duplicate signer")
	ErrThresholdNotMet  = errors.New("authority: approval threshold not met")
)

var approvalDomainPrefix = []byte("p2pescrow/admin")

// ApprovalDigest is the hash every admin signs to approve action on subject.
func ApprovalDigest(action string, subject [32]byte) []byte {
	return ethcrypto.Keccak256(approvalDomainPrefix, []byte(action), subject[:])
}

// Multisig authorizes admin actions when at least Threshold distinct admins
// have signed the approval digest.
type Multisig struct {
	admins    map[ethcommon.Address]struct{}
	threshold int
}

// NewMultisig constructs an authorizer for the given admin set. A threshold of
// one models a single admin key.
func NewMultisig(admins []ethcommon.Address, threshold int) (*Multisig, error) {
	set := make(map[ethcommon.Address]struct{}, len(admins))
	for _, admin := range admins {
		if admin == (ethcommon.Address{}) {
			return nil, fmt.Errorf("%w: zero address", ErrNoAdmins)
		}
		set[admin] = struct{}{}
	}
	if len(set) == 0 {
		return nil, ErrNoAdmins
	}
	if threshold < 1 || threshold > len(set) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidThreshold, threshold, len(set))
	}
	return &Multisig{admins: set, threshold: threshold}, nil
}

// Threshold returns the number of distinct admin signatures required.
func (m *Multisig) Threshold() int { return m.threshold }

// IsAdmin reports whether addr belongs to the admin set.
func (m *Multisig) IsAdmin(addr ethcommon.Address) bool {
	_, ok := m.admins[addr]
	return ok
}

// Authorize recovers the signer of every approval and checks that enough
// distinct admins signed the digest of action and subject.
func (m *Multisig) Authorize(action string, subject [32]byte, approvals [][]byte) error {
	if m == nil {
		return ErrNoAdmins
	}
	digest := ApprovalDigest(action, subject)
	seen := make(map[ethcommon.Address]struct{}, len(approvals))
	for i, sig := range approvals {
		if len(sig) != 65 {
			return fmt.Errorf("%w: approval %d has %d bytes", ErrSignatureInvalid, i, len(sig))
		}
		pubKey, err := ethcrypto.SigToPub(digest, sig)
		if err != nil {
			return fmt.Errorf("%w: approval %d: %v", ErrSignatureInvalid, i, err)
		}
		signer := ethcrypto.PubkeyToAddress(*pubKey)
		if !m.IsAdmin(signer) {
			return fmt.Errorf("%w: %s", ErrUnknownSigner, signer.Hex())
		}
		if _, dup := seen[signer]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSigner, signer.Hex())
		}
		seen[signer] = struct{}{}
	}
	if len(seen) < m.threshold {
		return fmt.Errorf("%w: %d of %d", ErrThresholdNotMet, len(seen), m.threshold)
	}
	return nil
}

// Sign produces an approval of action on subject with an admin key.
func Sign(key *ecdsa.PrivateKey, action string, subject [32]byte) ([]byte, error) {
	return ethcrypto.Sign(ApprovalDigest(action, subject), key)
}
