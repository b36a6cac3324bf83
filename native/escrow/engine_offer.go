package escrow

import "fmt"

func transitionOffer(o *Offer, next OfferStatus, now int64) error {
	if !o.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOfferStatus, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// requireExactVaultBalance fails unless the vault holds exactly
// amount + bond + reserve.
func requireExactVaultBalance(vault *Vault, offer *Offer) (uint64, error) {
	expected, err := offer.ExpectedVaultBalance()
	if err != nil {
		return 0, err
	}
	balance, err := vault.Balance()
	if err != nil {
		return 0, err
	}
	if balance != expected {
		return 0, fmt.Errorf("%w: vault holds %d, expected %d", ErrInvalidEscrowBalance, balance, expected)
	}
	return balance, nil
}

// CreateOffer registers a sell offer and funds its vault with the offered
// amount plus the minimum reserve, both taken from the seller.
func (e *Engine) CreateOffer(seller [20]byte, nonce uint64, amount, fiatAmount uint64, currency, paymentMethod string) (*Offer, error) {
	var created *Offer
	err := e.execute("create_offer", moduleOffers, func(c *txContext) error {
		if seller == ([20]byte{}) {
			return fmt.Errorf("%w: seller address required", ErrUnauthorized)
		}
		if amount == 0 {
			return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
		}
		if fiatAmount == 0 {
			return fmt.Errorf("%w: fiat amount must be positive", ErrInvalidAmount)
		}
		normalizedCurrency, err := NormalizeCurrency(currency)
		if err != nil {
			return err
		}
		normalizedMethod, err := NormalizePaymentMethod(paymentMethod)
		if err != nil {
			return err
		}
		reserve, err := e.minimumReserve()
		if err != nil {
			return err
		}
		deposit, err := addUint64(amount, reserve)
		if err != nil {
			return err
		}
		if err := consumeQuota(c.tx, moduleOffers, e.params.OfferQuota, seller, c.now, amount); err != nil {
			return err
		}
		id := OfferID(seller, nonce)
		offer := &Offer{
			ID:            id,
			Seller:        seller,
			Amount:        amount,
			FiatAmount:    fiatAmount,
			FiatCurrency:  normalizedCurrency,
			PaymentMethod: normalizedMethod,
			Status:        OfferStatusCreated,
			CreatedAt:     c.now,
			UpdatedAt:     c.now,
			Vault:         VaultAddress(id),
			Reserve:       reserve,
		}
		if err := createOffer(c.tx, offer); err != nil {
			return err
		}
		vault := openVault(c.tx, id, reserve)
		existing, err := vault.Balance()
		if err != nil {
			return err
		}
		if existing != 0 {
			return fmt.Errorf("%w: vault already holds %d", ErrInvalidEscrowBalance, existing)
		}
		if err := vault.Fund(seller, deposit); err != nil {
			return err
		}
		if _, err := requireExactVaultBalance(vault, offer); err != nil {
			return err
		}
		c.emit(NewOfferCreatedEvent(offer))
		created = offer.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListOffer publishes a created offer so buyers can accept it.
func (e *Engine) ListOffer(offerID [32]byte, caller [20]byte) (*Offer, error) {
	return e.updateOffer("list_offer", offerID, func(c *txContext, offer *Offer) error {
		if caller != offer.Seller {
			return fmt.Errorf("%w: only the seller may list", ErrUnauthorized)
		}
		if err := transitionOffer(offer, OfferStatusListed, c.now); err != nil {
			return err
		}
		c.emit(NewOfferListedEvent(offer))
		return nil
	})
}

// AcceptOffer records the buyer and locks the buyer's security bond in the
// vault.
func (e *Engine) AcceptOffer(offerID [32]byte, buyer [20]byte, securityBond uint64) (*Offer, error) {
	return e.updateOffer("accept_offer", offerID, func(c *txContext, offer *Offer) error {
		if buyer == ([20]byte{}) {
			return fmt.Errorf("%w: buyer address required", ErrUnauthorized)
		}
		if buyer == offer.Seller {
			return fmt.Errorf("%w: seller cannot accept own offer", ErrUnauthorized)
		}
		if err := transitionOffer(offer, OfferStatusAccepted, c.now); err != nil {
			return err
		}
		vault := openVault(c.tx, offer.ID, offer.Reserve)
		if _, err := requireExactVaultBalance(vault, offer); err != nil {
			return err
		}
		offer.Buyer = buyer
		offer.SecurityBond = securityBond
		if _, err := offer.ExpectedVaultBalance(); err != nil {
			return err
		}
		if err := vault.Fund(buyer, securityBond); err != nil {
			return err
		}
		if _, err := requireExactVaultBalance(vault, offer); err != nil {
			return err
		}
		if err := c.tx.KVAppend(buyerIndexKey(buyer), offer.ID[:]); err != nil {
			return err
		}
		c.emit(NewOfferAcceptedEvent(offer))
		return nil
	})
}

// MarkFiatSent is the buyer's assertion that the off-system payment was made.
func (e *Engine) MarkFiatSent(offerID [32]byte, caller [20]byte) (*Offer, error) {
	return e.updateOffer("mark_fiat_sent", offerID, func(c *txContext, offer *Offer) error {
		if !offer.HasBuyer() || caller != offer.Buyer {
			return fmt.Errorf("%w: only the buyer may mark fiat sent", ErrUnauthorized)
		}
		if err := transitionOffer(offer, OfferStatusFiatSent, c.now); err != nil {
			return err
		}
		c.emit(NewFiatSentEvent(offer))
		return nil
	})
}

// ConfirmFiatReceipt is the seller's acknowledgement of the fiat payment. It
// makes the vault releasable.
func (e *Engine) ConfirmFiatReceipt(offerID [32]byte, caller [20]byte) (*Offer, error) {
	return e.updateOffer("confirm_fiat_receipt", offerID, func(c *txContext, offer *Offer) error {
		if caller != offer.Seller {
			return fmt.Errorf("%w: only the seller may confirm receipt", ErrUnauthorized)
		}
		if err := transitionOffer(offer, OfferStatusReleaseReady, c.now); err != nil {
			return err
		}
		c.emit(NewFiatReceivedEvent(offer))
		return nil
	})
}

// ReleaseFunds pays the vault's transferable balance to the buyer and
// completes the offer. The presented buyer must match the recorded one.
func (e *Engine) ReleaseFunds(offerID [32]byte, caller, buyer [20]byte) (*Offer, error) {
	return e.updateOffer("release_funds", offerID, func(c *txContext, offer *Offer) error {
		if caller != offer.Seller {
			return fmt.Errorf("%w: only the seller may release", ErrUnauthorized)
		}
		if !offer.HasBuyer() || buyer != offer.Buyer {
			return fmt.Errorf("%w: payout account does not match recorded buyer", ErrUnauthorized)
		}
		if offer.Status != OfferStatusReleaseReady {
			return fmt.Errorf("%w: release requires %s, offer is %s", ErrInvalidOfferStatus, OfferStatusReleaseReady, offer.Status)
		}
		vault := openVault(c.tx, offer.ID, offer.Reserve)
		balance, err := requireExactVaultBalance(vault, offer)
		if err != nil {
			return err
		}
		payout := balance - offer.Reserve
		if err := vault.PayOut(mintVaultAuthority(offer.ID), offer.Buyer, payout); err != nil {
			return err
		}
		if err := transitionOffer(offer, OfferStatusCompleted, c.now); err != nil {
			return err
		}
		c.recordPayout("release", payout)
		c.emit(NewReleasedEvent(offer, payout))
		settled := offer.Clone()
		c.afterCommit(func() { e.tradeSettled(settled) })
		return nil
	})
}

// CancelOffer withdraws an offer nobody has accepted yet and refunds the
// offered amount to the seller. The reserve stays in the vault.
func (e *Engine) CancelOffer(offerID [32]byte, caller [20]byte) (*Offer, error) {
	return e.updateOffer("cancel_offer", offerID, func(c *txContext, offer *Offer) error {
		if caller != offer.Seller {
			return fmt.Errorf("%w: only the seller may cancel", ErrUnauthorized)
		}
		if err := transitionOffer(offer, OfferStatusCancelled, c.now); err != nil {
			return err
		}
		vault := openVault(c.tx, offer.ID, offer.Reserve)
		balance, err := requireExactVaultBalance(vault, offer)
		if err != nil {
			return err
		}
		refund := balance - offer.Reserve
		if err := vault.PayOut(mintVaultAuthority(offer.ID), offer.Seller, refund); err != nil {
			return err
		}
		c.recordPayout("cancel", refund)
		c.emit(NewCancelledEvent(offer, refund))
		return nil
	})
}

func (e *Engine) updateOffer(operation string, offerID [32]byte, fn func(c *txContext, offer *Offer) error) (*Offer, error) {
	var updated *Offer
	err := e.execute(operation, moduleOffers, func(c *txContext) error {
		offer, err := loadOffer(c.tx, offerID)
		if err != nil {
			return err
		}
		if err := fn(c, offer); err != nil {
			return err
		}
		if err := putOffer(c.tx, offer); err != nil {
			return err
		}
		updated = offer.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// tradeSettled forwards a completed release to the reputation and reward
// collaborators.
func (e *Engine) tradeSettled(offer *Offer) {
	if e.reputation != nil {
		e.runHook("reputation", func() error {
			if err := e.reputation.RecordTradeSuccess(offer.Seller); err != nil {
				return err
			}
			return e.reputation.RecordTradeSuccess(offer.Buyer)
		})
	}
	if e.rewards != nil {
		volume, err := offer.Principal()
		if err != nil {
			volume = offer.Amount
		}
		e.runHook("rewards", func() error {
			if err := e.rewards.AccrueTrade(offer.Seller, volume); err != nil {
				return err
			}
			return e.rewards.AccrueTrade(offer.Buyer, volume)
		})
	}
}
