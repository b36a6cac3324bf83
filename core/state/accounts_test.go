package state

import (
	"errors"
	"math/big"
	"testing"

	"p2pescrow/core/types"
)

func TestGetAccountDefaultsToZero(t *testing.T) {
	store := newTestStore(t)
	account, err := store.Account([20]byte{0x42})
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Balance.Sign() != 0 || account.RewardBalance.Sign() != 0 || account.Nonce != 0 {
		t.Fatalf("expected zero account, got %+v", account)
	}
}

func TestPutAccountRejectsNegativeBalance(t *testing.T) {
	store := newTestStore(t)
	err := store.Update(func(tx *Tx) error {
		return tx.PutAccount([20]byte{0x01}, &types.Account{Balance: big.NewInt(-1)})
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestAccountReturnsCommittedCopy(t *testing.T) {
	store := newTestStore(t)
	addr := [20]byte{0x07}
	err := store.Update(func(tx *Tx) error {
		return tx.PutAccount(addr, &types.Account{
			Balance:       big.NewInt(500),
			RewardBalance: big.NewInt(25),
			Nonce:         3,
		})
	})
	if err != nil {
		t.Fatalf("put account: %v", err)
	}

	first, err := store.Account(addr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	first.Balance.SetInt64(1)

	second, err := store.Account(addr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if second.Balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("mutating a returned account leaked into state: %s", second.Balance)
	}
	if second.RewardBalance.Cmp(big.NewInt(25)) != 0 || second.Nonce != 3 {
		t.Fatalf("unexpected account %+v", second)
	}
}

func TestTransferRejectsNegativeAmount(t *testing.T) {
	store := newTestStore(t)
	err := store.Update(func(tx *Tx) error {
		return tx.Transfer([20]byte{0x01}, [20]byte{0x02}, big.NewInt(-5))
	})
	if err == nil {
		t.Fatalf("expected error for negative transfer")
	}
}

func TestTransferToSelfIsNoop(t *testing.T) {
	store := newTestStore(t)
	addr := [20]byte{0x09}
	if _, err := store.ApplyGenesis([]Allocation{{Address: addr, Balance: big.NewInt(10)}}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	err := store.Update(func(tx *Tx) error {
		return tx.Transfer(addr, addr, big.NewInt(10))
	})
	if err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	account, err := store.Account(addr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("self transfer changed balance to %s", account.Balance)
	}
}
