package types

import "math/big"

// Account is the spendable state held for a single 20-byte address. Escrow
// vaults are ordinary accounts whose address has no private key.
type Account struct {
	Balance       *big.Int `json:"balance"`
	RewardBalance *big.Int `json:"rewardBalance"`
	Nonce         uint64   `json:"nonce"`
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	out := &Account{Nonce: a.Nonce}
	if a.Balance != nil {
		out.Balance = new(big.Int).Set(a.Balance)
	}
	if a.RewardBalance != nil {
		out.RewardBalance = new(big.Int).Set(a.RewardBalance)
	}
	return out
}
