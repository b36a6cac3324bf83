package state

import (
	"fmt"
	"math/big"
)

var genesisAppliedKey = []byte("genesis:applied")

// Allocation credits an initial balance to an address.
type Allocation struct {
	Address [20]byte
	Balance *big.Int
}

// ApplyGenesis credits the allocations exactly once. Subsequent calls are
// no-ops and report false.
func (s *Store) ApplyGenesis(allocs []Allocation) (bool, error) {
	applied := false
	err := s.Update(func(tx *Tx) error {
		done, err := tx.KVGet(genesisAppliedKey, nil)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		for i, alloc := range allocs {
			if alloc.Balance == nil || alloc.Balance.Sign() < 0 {
				return fmt.Errorf("genesis: allocation %d has invalid balance", i)
			}
			account, err := tx.GetAccount(alloc.Address)
			if err != nil {
				return err
			}
			account.Balance.Add(account.Balance, alloc.Balance)
			if err := tx.PutAccount(alloc.Address, account); err != nil {
				return fmt.Errorf("genesis: allocation %d: %w", i, err)
			}
		}
		applied = true
		return tx.KVPut(genesisAppliedKey, uint64(1))
	})
	return applied, err
}
