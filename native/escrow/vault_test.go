package escrow

import (
	"errors"
	"math/big"
	"testing"

	"p2pescrow/core/state"
	"p2pescrow/storage"
)

func newVaultStore(t *testing.T, funder [20]byte, balance uint64) *state.Store {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store := state.NewStore(db)
	if _, err := store.ApplyGenesis([]state.Allocation{{Address: funder, Balance: new(big.Int).SetUint64(balance)}}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return store
}

func TestVaultPayOutRequiresMatchingAuthority(t *testing.T) {
	funder := newTestAddress(0x01)
	store := newVaultStore(t, funder, 1_000)
	offerID := OfferID(funder, 1)
	otherID := OfferID(funder, 2)

	err := store.Update(func(tx *state.Tx) error {
		vault := openVault(tx, offerID, 100)
		if err := vault.Fund(funder, 600); err != nil {
			return err
		}
		if err := vault.PayOut(mintVaultAuthority(otherID), funder, 10); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected foreign authority to be rejected, got %v", err)
		}
		if err := vault.PayOut(vaultAuthority{}, funder, 10); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected zero authority to be rejected, got %v", err)
		}
		return vault.PayOut(mintVaultAuthority(offerID), funder, 500)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	err = store.View(func(tx *state.Tx) error {
		balance, err := openVault(tx, offerID, 100).Balance()
		if err != nil {
			return err
		}
		if balance != 100 {
			t.Fatalf("expected vault to retain reserve, got %d", balance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestVaultPayOutKeepsReserve(t *testing.T) {
	funder := newTestAddress(0x01)
	store := newVaultStore(t, funder, 1_000)
	offerID := OfferID(funder, 1)
	err := store.Update(func(tx *state.Tx) error {
		vault := openVault(tx, offerID, 100)
		if err := vault.Fund(funder, 300); err != nil {
			return err
		}
		if err := vault.PayOut(mintVaultAuthority(offerID), funder, 201); !errors.Is(err, ErrInvalidEscrowBalance) {
			t.Fatalf("expected reserve breach to fail, got %v", err)
		}
		if err := vault.PayOut(mintVaultAuthority(offerID), funder, 301); !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("expected overdraw to fail, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestVaultFundInsufficientBalance(t *testing.T) {
	funder := newTestAddress(0x01)
	store := newVaultStore(t, funder, 10)
	err := store.Update(func(tx *state.Tx) error {
		return openVault(tx, OfferID(funder, 1), 0).Fund(funder, 11)
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}
