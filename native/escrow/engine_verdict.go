package escrow

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"p2pescrow/observability"
)

// JurorAssignmentSubject is the digest admins approve when seating jurors.
// It binds the approval to the exact juror set.
func JurorAssignmentSubject(disputeID [32]byte, jurors [JurorCount][20]byte) [32]byte {
	parts := make([][]byte, 0, 1+JurorCount)
	parts = append(parts, disputeID[:])
	for i := range jurors {
		parts = append(parts, jurors[i][:])
	}
	return ethcrypto.Keccak256Hash(parts...)
}

// VerdictSubject is the digest admins approve when executing a verdict. It
// binds the approval to the payout accounts.
func VerdictSubject(disputeID [32]byte, buyer, seller [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash(disputeID[:], buyer[:], seller[:])
}

// ExecuteVerdict disburses the vault to the side holding the jury majority and
// closes both the dispute and the offer. The presented buyer and seller must
// match the offer record. Requires admin approval.
func (e *Engine) ExecuteVerdict(disputeID [32]byte, buyer, seller [20]byte, approvals [][]byte) (*Dispute, error) {
	var (
		settledOffer *Offer
		buyerWon     bool
	)
	dispute, err := e.updateDispute("execute_verdict", disputeID, func(c *txContext, dispute *Dispute) error {
		if err := e.authorize(ActionExecuteVerdict, VerdictSubject(disputeID, buyer, seller), approvals); err != nil {
			return err
		}
		if dispute.Status != DisputeStatusVerdictReached {
			return fmt.Errorf("%w: verdict requires %s, dispute is %s", ErrInvalidDisputeStatus, DisputeStatusVerdictReached, dispute.Status)
		}
		offer, err := loadOffer(c.tx, dispute.OfferID)
		if err != nil {
			return err
		}
		if offer.DisputeID != dispute.ID {
			return fmt.Errorf("%w: dispute is not linked to offer", ErrUnauthorized)
		}
		if buyer != offer.Buyer || seller != offer.Seller {
			return fmt.Errorf("%w: payout accounts do not match offer", ErrUnauthorized)
		}

		vault := openVault(c.tx, offer.ID, offer.Reserve)
		balance, err := vault.Balance()
		if err != nil {
			return err
		}
		if balance <= offer.Reserve {
			return fmt.Errorf("%w: vault holds %d, reserve %d", ErrInsufficientFunds, balance, offer.Reserve)
		}
		expected, err := offer.ExpectedVaultBalance()
		if err != nil {
			return err
		}
		if absDiff(balance, expected) > e.params.VerdictTolerance {
			return fmt.Errorf("%w: vault holds %d, expected %d within %d", ErrInvalidEscrowBalance, balance, expected, e.params.VerdictTolerance)
		}

		var (
			winner    string
			recipient [20]byte
		)
		switch {
		case dispute.VotesForBuyer > dispute.VotesForSeller:
			winner, recipient, buyerWon = winnerBuyer, offer.Buyer, true
		case dispute.VotesForSeller > dispute.VotesForBuyer:
			winner, recipient = winnerSeller, offer.Seller
		default:
			return ErrTiedVote
		}

		principal, err := offer.Principal()
		if err != nil {
			return err
		}
		payout := balance - offer.Reserve
		if payout > principal {
			payout = principal
		}
		if err := vault.PayOut(mintVaultAuthority(offer.ID), recipient, payout); err != nil {
			return err
		}

		if err := transitionDispute(dispute, DisputeStatusResolved); err != nil {
			return err
		}
		dispute.ResolvedAt = c.now
		if err := transitionOffer(offer, OfferStatusCompleted, c.now); err != nil {
			return err
		}
		if err := putOffer(c.tx, offer); err != nil {
			return err
		}
		c.recordPayout("verdict", payout)
		c.emit(NewVerdictExecutedEvent(dispute, winner, recipient, payout))
		settledOffer = offer.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	winner := winnerSeller
	if buyerWon {
		winner = winnerBuyer
	}
	observability.Escrow().RecordVerdict(winner)
	e.verdictSettled(settledOffer, buyerWon)
	return dispute, nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// verdictSettled forwards the outcome to the reputation collaborator. The
// trade itself does not count as a successful one.
func (e *Engine) verdictSettled(offer *Offer, buyerWon bool) {
	if e.reputation == nil || offer == nil {
		return
	}
	e.runHook("reputation", func() error {
		if err := e.reputation.RecordDisputeOutcome(offer.Buyer, buyerWon); err != nil {
			return err
		}
		return e.reputation.RecordDisputeOutcome(offer.Seller, !buyerWon)
	})
}
