package escrow

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	vaultSeedPrefix   = []byte("escrow")
	disputeSeedPrefix = []byte("dispute")
)

// OfferID derives the deterministic offer identifier for a seller and nonce.
func OfferID(seller [20]byte, nonce uint64) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return ethcrypto.Keccak256Hash(seller[:], buf[:])
}

// DisputeID derives the identifier of the single dispute an offer may have.
func DisputeID(offerID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(disputeSeedPrefix, offerID[:])
}

// vaultSeed is the derivation seed binding a vault and its payout authority
// to one offer.
func vaultSeed(offerID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(vaultSeedPrefix, offerID[:])
}

// VaultAddress derives the custody address for an offer. No private key
// exists for it.
func VaultAddress(offerID [32]byte) [20]byte {
	seed := vaultSeed(offerID)
	var addr [20]byte
	copy(addr[:], seed[12:])
	return addr
}
