package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"p2pescrow/core/types"
)

var (
	accountPrefix = []byte("account:")

	// ErrInsufficientBalance is returned when a debit exceeds the account balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrBalanceOverflow is returned when a credit would exceed 256 bits.
	ErrBalanceOverflow = errors.New("state: balance overflow")
)

type storedAccount struct {
	Balance       *big.Int
	RewardBalance *big.Int
	Nonce         uint64
}

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

func ensureAccountDefaults(account *types.Account) {
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	if account.RewardBalance == nil {
		account.RewardBalance = big.NewInt(0)
	}
}

// GetAccount returns the account stored for addr. Unknown addresses yield a
// zero-balance account.
func (tx *Tx) GetAccount(addr [20]byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := tx.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if ok {
		account.Balance = stored.Balance
		account.RewardBalance = stored.RewardBalance
		account.Nonce = stored.Nonce
	}
	ensureAccountDefaults(account)
	return account, nil
}

// PutAccount persists the account, rejecting negative balances and balances
// that do not fit in 256 bits.
func (tx *Tx) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	ensureAccountDefaults(account)
	for _, value := range []*big.Int{account.Balance, account.RewardBalance} {
		if value.Sign() < 0 {
			return ErrInsufficientBalance
		}
		if _, overflow := uint256.FromBig(value); overflow {
			return ErrBalanceOverflow
		}
	}
	return tx.KVPut(accountKey(addr), storedAccount{
		Balance:       new(big.Int).Set(account.Balance),
		RewardBalance: new(big.Int).Set(account.RewardBalance),
		Nonce:         account.Nonce,
	})
}

// Transfer moves amount of the spendable balance from one account to another.
func (tx *Tx) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	src, err := tx.GetAccount(from)
	if err != nil {
		return err
	}
	if src.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	dst, err := tx.GetAccount(to)
	if err != nil {
		return err
	}
	src.Balance.Sub(src.Balance, amount)
	dst.Balance.Add(dst.Balance, amount)
	if err := tx.PutAccount(from, src); err != nil {
		return err
	}
	return tx.PutAccount(to, dst)
}

// Balance returns the spendable balance for addr.
func (tx *Tx) Balance(addr [20]byte) (*big.Int, error) {
	account, err := tx.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Balance, nil
}

// Account returns a copy of the account stored for addr.
func (s *Store) Account(addr [20]byte) (*types.Account, error) {
	var out *types.Account
	err := s.View(func(tx *Tx) error {
		account, err := tx.GetAccount(addr)
		out = account
		return err
	})
	return out, err
}
