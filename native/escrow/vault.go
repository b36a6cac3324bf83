package escrow

import (
	"errors"
	"fmt"
	"math/big"

	"p2pescrow/core/state"
)

// ledger is the slice of account state a vault needs.
type ledger interface {
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// vaultAuthority is the capability required to move funds out of a vault. It
// can only be minted inside this package and is bound to one offer's
// derivation seed.
type vaultAuthority struct {
	seed [32]byte
}

func mintVaultAuthority(offerID [32]byte) vaultAuthority {
	return vaultAuthority{seed: vaultSeed(offerID)}
}

// Vault is the custody account backing a single offer.
type Vault struct {
	ledger  ledger
	offerID [32]byte
	address [20]byte
	reserve uint64
}

func openVault(l ledger, offerID [32]byte, reserve uint64) *Vault {
	return &Vault{
		ledger:  l,
		offerID: offerID,
		address: VaultAddress(offerID),
		reserve: reserve,
	}
}

// Address returns the derived custody address.
func (v *Vault) Address() [20]byte { return v.address }

// Reserve returns the minimum balance the vault retains after payouts.
func (v *Vault) Reserve() uint64 { return v.reserve }

// Balance returns the current vault balance.
func (v *Vault) Balance() (uint64, error) {
	balance, err := v.ledger.Balance(v.address)
	if err != nil {
		return 0, err
	}
	if !balance.IsUint64() {
		return 0, fmt.Errorf("%w: vault balance %s", ErrMathOverflow, balance)
	}
	return balance.Uint64(), nil
}

// Fund moves amount from the depositor into the vault. No authority is
// required to pay in.
func (v *Vault) Fund(from [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := v.ledger.Transfer(from, v.address, new(big.Int).SetUint64(amount)); err != nil {
		if errors.Is(err, state.ErrInsufficientBalance) {
			return fmt.Errorf("%w: depositor balance below %d", ErrInsufficientFunds, amount)
		}
		return err
	}
	return nil
}

// PayOut moves amount from the vault to the recipient. The authority must have
// been minted for this vault's offer and the vault must keep at least its
// reserve.
func (v *Vault) PayOut(auth vaultAuthority, to [20]byte, amount uint64) error {
	if auth.seed != vaultSeed(v.offerID) {
		return errVaultAuthorityInvalid
	}
	if amount == 0 {
		return nil
	}
	balance, err := v.Balance()
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: vault holds %d, payout %d", ErrInsufficientFunds, balance, amount)
	}
	if balance-amount < v.reserve {
		return fmt.Errorf("%w: payout %d would leave %d below reserve %d", ErrInvalidEscrowBalance, amount, balance-amount, v.reserve)
	}
	return v.ledger.Transfer(v.address, to, new(big.Int).SetUint64(amount))
}

var _ ledger = (*state.Tx)(nil)
