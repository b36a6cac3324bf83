package escrow

import "fmt"

func transitionDispute(d *Dispute, next DisputeStatus) error {
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDisputeStatus, d.Status, next)
	}
	d.Status = next
	return nil
}

// OpenDispute opens the single dispute an accepted offer may have. The
// initiator must be one trading party and the respondent the other.
func (e *Engine) OpenDispute(offerID [32]byte, initiator, respondent [20]byte, reason string) (*Dispute, error) {
	var opened *Dispute
	err := e.execute("open_dispute", moduleDisputes, func(c *txContext) error {
		offer, err := loadOffer(c.tx, offerID)
		if err != nil {
			return err
		}
		if offer.Status.Terminal() {
			return fmt.Errorf("%w: offer is %s", ErrInvalidOfferStatus, offer.Status)
		}
		if offer.HasDispute() {
			return ErrDisputeAlreadyExists
		}
		if !offer.HasBuyer() {
			return fmt.Errorf("%w: offer has no counterparty", ErrUnauthorized)
		}
		var expectedRespondent [20]byte
		switch initiator {
		case offer.Seller:
			expectedRespondent = offer.Buyer
		case offer.Buyer:
			expectedRespondent = offer.Seller
		default:
			return fmt.Errorf("%w: initiator is not a trading party", ErrUnauthorized)
		}
		if respondent != expectedRespondent {
			return fmt.Errorf("%w: respondent is not the counterparty", ErrUnauthorized)
		}
		normalizedReason, err := NormalizeDisputeReason(reason)
		if err != nil {
			return err
		}
		if err := consumeQuota(c.tx, moduleDisputes, e.params.DisputeQuota, initiator, c.now, 0); err != nil {
			return err
		}
		dispute := &Dispute{
			ID:         DisputeID(offer.ID),
			OfferID:    offer.ID,
			Initiator:  initiator,
			Respondent: respondent,
			Reason:     normalizedReason,
			Status:     DisputeStatusOpened,
			CreatedAt:  c.now,
		}
		if err := createDispute(c.tx, dispute); err != nil {
			return err
		}
		if err := transitionOffer(offer, OfferStatusDisputeOpened, c.now); err != nil {
			return err
		}
		offer.DisputeID = dispute.ID
		if err := putOffer(c.tx, offer); err != nil {
			return err
		}
		c.emit(NewDisputeOpenedEvent(dispute))
		opened = dispute.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// AssignJurors seats the three jurors of a dispute. Requires admin approval.
func (e *Engine) AssignJurors(disputeID [32]byte, jurors [JurorCount][20]byte, approvals [][]byte) (*Dispute, error) {
	return e.updateDispute("assign_jurors", disputeID, func(c *txContext, dispute *Dispute) error {
		if err := e.authorize(ActionAssignJurors, JurorAssignmentSubject(disputeID, jurors), approvals); err != nil {
			return err
		}
		if dispute.Status != DisputeStatusOpened {
			return fmt.Errorf("%w: jurors already assigned", ErrInvalidDisputeStatus)
		}
		offer, err := loadOffer(c.tx, dispute.OfferID)
		if err != nil {
			return err
		}
		seen := make(map[[20]byte]struct{}, JurorCount)
		for i, juror := range jurors {
			if juror == ([20]byte{}) {
				return fmt.Errorf("%w: juror %d is empty", ErrInvalidJuror, i)
			}
			if juror == offer.Seller || juror == offer.Buyer || dispute.IsParty(juror) {
				return fmt.Errorf("%w: juror %d is a trading party", ErrInvalidJuror, i)
			}
			if _, dup := seen[juror]; dup {
				return fmt.Errorf("%w: juror %d is duplicated", ErrInvalidJuror, i)
			}
			seen[juror] = struct{}{}
		}
		if err := transitionDispute(dispute, DisputeStatusJurorsAssigned); err != nil {
			return err
		}
		dispute.Jurors = jurors
		for _, juror := range jurors {
			if err := c.tx.KVAppend(jurorIndexKey(juror), dispute.ID[:]); err != nil {
				return err
			}
		}
		c.emit(NewJurorsAssignedEvent(dispute))
		return nil
	})
}

// SubmitEvidence appends an evidence URL to the submitting party's side of the
// dispute. The side follows the party's role in the offer.
func (e *Engine) SubmitEvidence(disputeID [32]byte, caller [20]byte, url string) (*Dispute, error) {
	return e.updateDispute("submit_evidence", disputeID, func(c *txContext, dispute *Dispute) error {
		if !dispute.IsParty(caller) {
			return fmt.Errorf("%w: only dispute parties may submit evidence", ErrUnauthorized)
		}
		if dispute.Status != DisputeStatusJurorsAssigned && dispute.Status != DisputeStatusEvidenceSubmission {
			return fmt.Errorf("%w: evidence not accepted while %s", ErrInvalidDisputeStatus, dispute.Status)
		}
		normalizedURL, err := NormalizeEvidenceURL(url)
		if err != nil {
			return err
		}
		offer, err := loadOffer(c.tx, dispute.OfferID)
		if err != nil {
			return err
		}
		var side string
		switch caller {
		case offer.Buyer:
			if dispute.EvidenceBuyerCount >= MaxEvidenceItems {
				return ErrTooManyEvidenceItems
			}
			dispute.EvidenceBuyer[dispute.EvidenceBuyerCount] = normalizedURL
			dispute.EvidenceBuyerCount++
			side = winnerBuyer
		case offer.Seller:
			if dispute.EvidenceSellerCount >= MaxEvidenceItems {
				return ErrTooManyEvidenceItems
			}
			dispute.EvidenceSeller[dispute.EvidenceSellerCount] = normalizedURL
			dispute.EvidenceSellerCount++
			side = winnerSeller
		default:
			return fmt.Errorf("%w: caller is not a trading party", ErrUnauthorized)
		}
		if dispute.Status == DisputeStatusJurorsAssigned {
			if err := transitionDispute(dispute, DisputeStatusEvidenceSubmission); err != nil {
				return err
			}
		}
		c.emit(NewEvidenceSubmittedEvent(dispute, caller, side, normalizedURL))
		return nil
	})
}

// checkVotingDeadline rejects ballots outside the dispute's windows.
func (e *Engine) checkVotingDeadline(dispute *Dispute, now int64) error {
	elapsed := now - dispute.CreatedAt
	if elapsed > e.params.TotalDeadline {
		return fmt.Errorf("%w: %ds since opening exceeds total deadline %ds", ErrDisputeExpired, elapsed, e.params.TotalDeadline)
	}
	if dispute.Status == DisputeStatusVoting {
		window := e.params.EvidenceWindow + e.params.VotingWindow
		if elapsed > window {
			return fmt.Errorf("%w: %ds since opening exceeds voting window %ds", ErrDisputeExpired, elapsed, window)
		}
	}
	return nil
}

// CastVote records a juror's ballot. The first vote opens the voting phase;
// the first side to collect a strict majority ends it.
func (e *Engine) CastVote(disputeID [32]byte, juror [20]byte, forBuyer bool) (*Dispute, error) {
	return e.updateDispute("cast_vote", disputeID, func(c *txContext, dispute *Dispute) error {
		if !dispute.IsJuror(juror) {
			return ErrNotAJuror
		}
		if dispute.Status != DisputeStatusEvidenceSubmission && dispute.Status != DisputeStatusVoting {
			return fmt.Errorf("%w: votes not accepted while %s", ErrInvalidDisputeStatus, dispute.Status)
		}
		if err := e.checkVotingDeadline(dispute, c.now); err != nil {
			return err
		}
		vote := &Vote{DisputeID: dispute.ID, Juror: juror, ForBuyer: forBuyer, Timestamp: c.now}
		if err := createVote(c.tx, vote); err != nil {
			return err
		}
		if err := tallyVote(dispute, forBuyer); err != nil {
			return err
		}
		if dispute.Status == DisputeStatusEvidenceSubmission {
			if err := transitionDispute(dispute, DisputeStatusVoting); err != nil {
				return err
			}
		}
		if dispute.VotesForBuyer >= MajorityVotes || dispute.VotesForSeller >= MajorityVotes {
			if err := transitionDispute(dispute, DisputeStatusVerdictReached); err != nil {
				return err
			}
		}
		c.emit(NewVoteCastEvent(dispute, vote))
		if e.rewards != nil {
			c.afterCommit(func() {
				e.runHook("rewards", func() error { return e.rewards.AccrueVote(juror) })
			})
		}
		return nil
	})
}

func tallyVote(d *Dispute, forBuyer bool) error {
	if forBuyer {
		if d.VotesForBuyer == ^uint8(0) {
			return ErrMathOverflow
		}
		d.VotesForBuyer++
	} else {
		if d.VotesForSeller == ^uint8(0) {
			return ErrMathOverflow
		}
		d.VotesForSeller++
	}
	if int(d.VotesForBuyer)+int(d.VotesForSeller) > JurorCount {
		return fmt.Errorf("%w: more ballots than jurors", ErrAlreadyVoted)
	}
	return nil
}

func (e *Engine) updateDispute(operation string, disputeID [32]byte, fn func(c *txContext, dispute *Dispute) error) (*Dispute, error) {
	var updated *Dispute
	err := e.execute(operation, moduleDisputes, func(c *txContext) error {
		dispute, err := loadDispute(c.tx, disputeID)
		if err != nil {
			return err
		}
		if dispute.Status == DisputeStatusResolved {
			return fmt.Errorf("%w: dispute already resolved", ErrInvalidDisputeStatus)
		}
		if err := fn(c, dispute); err != nil {
			return err
		}
		if err := putDispute(c.tx, dispute); err != nil {
			return err
		}
		updated = dispute.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
