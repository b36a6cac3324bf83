package escrow

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"p2pescrow/core/events"
	"p2pescrow/core/state"
	"p2pescrow/storage"
)

const (
	testAmount  uint64 = 1_000_000_000
	testBond    uint64 = 100_000_000
	testReserve uint64 = 890_880
	testStart   int64  = 1_700_000_000
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *capturingEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

func (c *capturingEmitter) last() events.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

type stubAuthorizer struct {
	calls   []string
	subject [32]byte
	deny    bool
}

func (s *stubAuthorizer) Authorize(action string, subject [32]byte, approvals [][]byte) error {
	s.calls = append(s.calls, action)
	s.subject = subject
	if s.deny || len(approvals) == 0 {
		return errors.New("no admin approval")
	}
	return nil
}

type recordingHooks struct {
	successes [][20]byte
	outcomes  map[[20]byte]bool
	trades    map[[20]byte]uint64
	votes     [][20]byte
	fail      bool
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{outcomes: make(map[[20]byte]bool), trades: make(map[[20]byte]uint64)}
}

func (r *recordingHooks) RecordTradeSuccess(user [20]byte) error {
	if r.fail {
		return errors.New("reputation unavailable")
	}
	r.successes = append(r.successes, user)
	return nil
}

func (r *recordingHooks) RecordDisputeOutcome(user [20]byte, won bool) error {
	if r.fail {
		return errors.New("reputation unavailable")
	}
	r.outcomes[user] = won
	return nil
}

func (r *recordingHooks) AccrueTrade(user [20]byte, volume uint64) error {
	if r.fail {
		return errors.New("rewards unavailable")
	}
	r.trades[user] += volume
	return nil
}

func (r *recordingHooks) AccrueVote(juror [20]byte) error {
	if r.fail {
		return errors.New("rewards unavailable")
	}
	r.votes = append(r.votes, juror)
	return nil
}

type testEnv struct {
	t       *testing.T
	engine  *Engine
	store   *state.Store
	emitter *capturingEmitter
	auth    *stubAuthorizer
	hooks   *recordingHooks
	now     int64
	seller  [20]byte
	buyer   [20]byte
	jurors  [JurorCount][20]byte
	outside [20]byte
}

var testApproval = [][]byte{{0x01}}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	env := &testEnv{
		t:       t,
		store:   state.NewStore(db),
		emitter: &capturingEmitter{},
		auth:    &stubAuthorizer{},
		hooks:   newRecordingHooks(),
		now:     testStart,
		seller:  newTestAddress(0x11),
		buyer:   newTestAddress(0x22),
		jurors:  [JurorCount][20]byte{newTestAddress(0x31), newTestAddress(0x32), newTestAddress(0x33)},
		outside: newTestAddress(0x99),
	}
	_, err := env.store.ApplyGenesis([]state.Allocation{
		{Address: env.seller, Balance: new(big.Int).SetUint64(10 * testAmount)},
		{Address: env.buyer, Balance: new(big.Int).SetUint64(testAmount)},
	})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	engine := NewEngine()
	engine.SetStore(env.store)
	engine.SetEmitter(env.emitter)
	engine.SetNowFunc(func() int64 { return env.now })
	engine.SetReserveCalculator(FixedReserve(testReserve))
	engine.SetAuthorizer(env.auth)
	engine.SetReputation(env.hooks)
	engine.SetRewards(env.hooks)
	params := DefaultParams()
	params.OfferQuota.CooldownSeconds = 0
	params.DisputeQuota.CooldownSeconds = 0
	if err := engine.SetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}
	env.engine = engine
	return env
}

func (env *testEnv) balance(addr [20]byte) uint64 {
	env.t.Helper()
	var out uint64
	err := env.store.View(func(tx *state.Tx) error {
		bal, err := tx.Balance(addr)
		if err != nil {
			return err
		}
		out = bal.Uint64()
		return nil
	})
	if err != nil {
		env.t.Fatalf("balance: %v", err)
	}
	return out
}

func (env *testEnv) vaultBalance(offerID [32]byte) uint64 {
	env.t.Helper()
	bal, err := env.engine.VaultBalance(offerID)
	if err != nil {
		env.t.Fatalf("vault balance: %v", err)
	}
	return bal
}

func (env *testEnv) createOffer(nonce uint64) *Offer {
	env.t.Helper()
	offer, err := env.engine.CreateOffer(env.seller, nonce, testAmount, 100, "USD", "bank transfer")
	if err != nil {
		env.t.Fatalf("create offer: %v", err)
	}
	return offer
}

func (env *testEnv) acceptedOffer(nonce uint64) *Offer {
	env.t.Helper()
	offer := env.createOffer(nonce)
	if _, err := env.engine.ListOffer(offer.ID, env.seller); err != nil {
		env.t.Fatalf("list offer: %v", err)
	}
	accepted, err := env.engine.AcceptOffer(offer.ID, env.buyer, testBond)
	if err != nil {
		env.t.Fatalf("accept offer: %v", err)
	}
	return accepted
}

// votingDispute opens a dispute by the buyer, seats the jurors and submits
// one evidence item so ballots are accepted.
func (env *testEnv) votingDispute(nonce uint64) (*Offer, *Dispute) {
	env.t.Helper()
	offer := env.acceptedOffer(nonce)
	dispute, err := env.engine.OpenDispute(offer.ID, env.buyer, env.seller, "fiat sent, seller unresponsive")
	if err != nil {
		env.t.Fatalf("open dispute: %v", err)
	}
	if _, err := env.engine.AssignJurors(dispute.ID, env.jurors, testApproval); err != nil {
		env.t.Fatalf("assign jurors: %v", err)
	}
	if _, err := env.engine.SubmitEvidence(dispute.ID, env.buyer, "https://evidence.example/receipt.png"); err != nil {
		env.t.Fatalf("submit evidence: %v", err)
	}
	return offer, dispute
}

func TestCreateOfferFundsVault(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(1)

	if offer.ID != OfferID(env.seller, 1) {
		t.Fatalf("unexpected offer id")
	}
	if offer.Vault != VaultAddress(offer.ID) {
		t.Fatalf("vault address not derived from offer id")
	}
	if offer.Status != OfferStatusCreated {
		t.Fatalf("expected created status, got %s", offer.Status)
	}
	if got := env.vaultBalance(offer.ID); got != testAmount+testReserve {
		t.Fatalf("expected vault balance %d, got %d", testAmount+testReserve, got)
	}
	if got := env.balance(env.seller); got != 10*testAmount-testAmount-testReserve {
		t.Fatalf("unexpected seller balance %d", got)
	}
	if types := env.emitter.types(); len(types) != 1 || types[0] != EventTypeOfferCreated {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCreateOfferValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name     string
		amount   uint64
		fiat     uint64
		currency string
		method   string
		want     error
	}{
		{"zero amount", 0, 100, "USD", "bank", ErrInvalidAmount},
		{"zero fiat", 1, 0, "USD", "bank", ErrInvalidAmount},
		{"lowercase currency", 1, 100, "usd", "bank", ErrInvalidCurrencyCode},
		{"long currency", 1, 100, "USDOLLARSXX", "bank", ErrInputTooLong},
		{"two letters", 1, 100, "US", "bank", ErrInvalidCurrencyCode},
		{"empty method", 1, 100, "USD", "   ", ErrEmptyInput},
		{"long method", 1, 100, "USD", string(bytes.Repeat([]byte("m"), MaxPaymentMethodLen+1)), ErrInputTooLong},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.CreateOffer(env.seller, uint64(100+i), tc.amount, tc.fiat, tc.currency, tc.method)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(env.emitter.events) != 0 {
		t.Fatalf("rejected operations must not emit events")
	}
}

func TestCreateOfferDuplicateNonce(t *testing.T) {
	env := newTestEnv(t)
	env.createOffer(7)
	before := env.balance(env.seller)
	_, err := env.engine.CreateOffer(env.seller, 7, testAmount, 100, "USD", "bank")
	if !errors.Is(err, ErrOfferExists) {
		t.Fatalf("expected ErrOfferExists, got %v", err)
	}
	if env.balance(env.seller) != before {
		t.Fatalf("failed create must not move funds")
	}
}

func TestCreateOfferInsufficientFundsIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.CreateOffer(env.buyer, 1, testAmount, 100, "USD", "bank")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := env.engine.Offer(OfferID(env.buyer, 1)); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("offer record must be rolled back, got %v", err)
	}
	if env.balance(env.buyer) != testAmount {
		t.Fatalf("buyer balance changed after failed create")
	}
}

func TestScenarioAListOnlyFromCreated(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(1)
	if _, err := env.engine.ListOffer(offer.ID, env.buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-seller, got %v", err)
	}
	listed, err := env.engine.ListOffer(offer.ID, env.seller)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listed.Status != OfferStatusListed {
		t.Fatalf("expected listed, got %s", listed.Status)
	}
	if _, err := env.engine.ListOffer(offer.ID, env.seller); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected ErrInvalidOfferStatus on relist, got %v", err)
	}
}

func TestScenarioBHappyPathRelease(t *testing.T) {
	env := newTestEnv(t)
	offer := env.acceptedOffer(1)
	if got := env.vaultBalance(offer.ID); got != testAmount+testBond+testReserve {
		t.Fatalf("expected vault balance %d after accept, got %d", testAmount+testBond+testReserve, got)
	}
	if offer.Buyer != env.buyer || offer.SecurityBond != testBond {
		t.Fatalf("buyer and bond not recorded: %+v", offer)
	}

	if _, err := env.engine.ConfirmFiatReceipt(offer.ID, env.seller); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected confirm before fiat sent to fail, got %v", err)
	}
	if _, err := env.engine.MarkFiatSent(offer.ID, env.seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected seller mark fiat sent to fail, got %v", err)
	}
	if _, err := env.engine.MarkFiatSent(offer.ID, env.buyer); err != nil {
		t.Fatalf("mark fiat sent: %v", err)
	}
	if _, err := env.engine.ReleaseFunds(offer.ID, env.seller, env.buyer); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected release before confirmation to fail, got %v", err)
	}
	if _, err := env.engine.ConfirmFiatReceipt(offer.ID, env.buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected buyer confirmation to fail, got %v", err)
	}
	if _, err := env.engine.ConfirmFiatReceipt(offer.ID, env.seller); err != nil {
		t.Fatalf("confirm receipt: %v", err)
	}
	if _, err := env.engine.ReleaseFunds(offer.ID, env.seller, env.outside); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected substituted buyer to be rejected, got %v", err)
	}
	if _, err := env.engine.ReleaseFunds(offer.ID, env.buyer, env.buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected buyer-signed release to be rejected, got %v", err)
	}

	buyerBefore := env.balance(env.buyer)
	released, err := env.engine.ReleaseFunds(offer.ID, env.seller, env.buyer)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != OfferStatusCompleted {
		t.Fatalf("expected completed, got %s", released.Status)
	}
	if got := env.balance(env.buyer) - buyerBefore; got != testAmount+testBond {
		t.Fatalf("expected buyer to receive %d, got %d", testAmount+testBond, got)
	}
	if got := env.vaultBalance(offer.ID); got != testReserve {
		t.Fatalf("expected reserve %d left in vault, got %d", testReserve, got)
	}
	if _, err := env.engine.ReleaseFunds(offer.ID, env.seller, env.buyer); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected second release to fail, got %v", err)
	}

	want := []string{
		EventTypeOfferCreated, EventTypeOfferListed, EventTypeOfferAccepted,
		EventTypeOfferFiatSent, EventTypeOfferFiatReceived, EventTypeOfferReleased,
	}
	got := env.emitter.types()
	if len(got) != len(want) {
		t.Fatalf("unexpected events %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: want %s got %s", i, want[i], got[i])
		}
	}
	if paid := env.emitter.last().Event().Attributes["paid"]; paid != "1100000000" {
		t.Fatalf("unexpected paid attribute %q", paid)
	}
	if len(env.hooks.successes) != 2 {
		t.Fatalf("expected both parties to be credited a successful trade, got %d", len(env.hooks.successes))
	}
	if env.hooks.trades[env.buyer] != testAmount+testBond {
		t.Fatalf("expected buyer trade volume to accrue, got %d", env.hooks.trades[env.buyer])
	}
}

func TestReleaseRejectsTamperedVaultBalance(t *testing.T) {
	env := newTestEnv(t)
	offer := env.acceptedOffer(1)
	if _, err := env.engine.MarkFiatSent(offer.ID, env.buyer); err != nil {
		t.Fatalf("mark fiat sent: %v", err)
	}
	if _, err := env.engine.ConfirmFiatReceipt(offer.ID, env.seller); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	err := env.store.Update(func(tx *state.Tx) error {
		return tx.Transfer(env.seller, offer.Vault, big.NewInt(1))
	})
	if err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := env.engine.ReleaseFunds(offer.ID, env.seller, env.buyer); !errors.Is(err, ErrInvalidEscrowBalance) {
		t.Fatalf("expected ErrInvalidEscrowBalance, got %v", err)
	}
	stored, err := env.engine.Offer(offer.ID)
	if err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if stored.Status != OfferStatusReleaseReady {
		t.Fatalf("failed release must not change status, got %s", stored.Status)
	}
}

func TestAcceptOfferRejectsSeller(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(1)
	if _, err := env.engine.AcceptOffer(offer.ID, env.buyer, testBond); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected accept of unlisted offer to fail, got %v", err)
	}
	if _, err := env.engine.ListOffer(offer.ID, env.seller); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := env.engine.AcceptOffer(offer.ID, env.seller, testBond); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected seller self-accept to fail, got %v", err)
	}
}

func TestCancelOfferRefundsAmount(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(1)
	before := env.balance(env.seller)
	cancelled, err := env.engine.CancelOffer(offer.ID, env.seller)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != OfferStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if got := env.balance(env.seller) - before; got != testAmount {
		t.Fatalf("expected refund of %d, got %d", testAmount, got)
	}
	if got := env.vaultBalance(offer.ID); got != testReserve {
		t.Fatalf("expected reserve to remain, got %d", got)
	}
	if _, err := env.engine.OpenDispute(offer.ID, env.seller, env.buyer, "late"); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected dispute on cancelled offer to fail, got %v", err)
	}

	accepted := env.acceptedOffer(2)
	if _, err := env.engine.CancelOffer(accepted.ID, env.seller); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected cancel after accept to fail, got %v", err)
	}
}

func TestOpenDisputeValidation(t *testing.T) {
	env := newTestEnv(t)
	created := env.createOffer(1)
	if _, err := env.engine.OpenDispute(created.ID, env.seller, [20]byte{}, "no buyer"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected dispute without counterparty to fail, got %v", err)
	}

	offer := env.acceptedOffer(2)
	if _, err := env.engine.OpenDispute(offer.ID, env.outside, env.seller, "spam"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected outsider dispute to fail, got %v", err)
	}
	if _, err := env.engine.OpenDispute(offer.ID, env.buyer, env.outside, "wrong respondent"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected wrong respondent to fail, got %v", err)
	}
	long := string(bytes.Repeat([]byte("r"), MaxDisputeReasonLen+1))
	if _, err := env.engine.OpenDispute(offer.ID, env.buyer, env.seller, long); !errors.Is(err, ErrInputTooLong) {
		t.Fatalf("expected long reason to fail, got %v", err)
	}
	dispute, err := env.engine.OpenDispute(offer.ID, env.seller, env.buyer, "  buyer never paid  ")
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if dispute.Reason != "buyer never paid" {
		t.Fatalf("expected trimmed reason, got %q", dispute.Reason)
	}
	if dispute.ID != DisputeID(offer.ID) {
		t.Fatalf("unexpected dispute id")
	}
	stored, err := env.engine.Offer(offer.ID)
	if err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if stored.Status != OfferStatusDisputeOpened || stored.DisputeID != dispute.ID {
		t.Fatalf("offer not linked to dispute: %+v", stored)
	}
	if _, err := env.engine.OpenDispute(offer.ID, env.buyer, env.seller, "again"); !errors.Is(err, ErrDisputeAlreadyExists) {
		t.Fatalf("expected second dispute to fail, got %v", err)
	}
	if _, err := env.engine.MarkFiatSent(offer.ID, env.buyer); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected disputed offer to reject normal flow, got %v", err)
	}
}

func TestAssignJurors(t *testing.T) {
	env := newTestEnv(t)
	offer := env.acceptedOffer(1)
	dispute, err := env.engine.OpenDispute(offer.ID, env.buyer, env.seller, "reason")
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if _, err := env.engine.AssignJurors(dispute.ID, env.jurors, nil); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected missing approval to fail, got %v", err)
	}
	dup := [JurorCount][20]byte{env.jurors[0], env.jurors[0], env.jurors[1]}
	if _, err := env.engine.AssignJurors(dispute.ID, dup, testApproval); !errors.Is(err, ErrInvalidJuror) {
		t.Fatalf("expected duplicate juror to fail, got %v", err)
	}
	party := [JurorCount][20]byte{env.jurors[0], env.seller, env.jurors[1]}
	if _, err := env.engine.AssignJurors(dispute.ID, party, testApproval); !errors.Is(err, ErrInvalidJuror) {
		t.Fatalf("expected party juror to fail, got %v", err)
	}
	assigned, err := env.engine.AssignJurors(dispute.ID, env.jurors, testApproval)
	if err != nil {
		t.Fatalf("assign jurors: %v", err)
	}
	if assigned.Status != DisputeStatusJurorsAssigned || assigned.Jurors != env.jurors {
		t.Fatalf("jurors not recorded: %+v", assigned)
	}
	if env.auth.subject != JurorAssignmentSubject(dispute.ID, env.jurors) {
		t.Fatalf("authorizer received unexpected subject")
	}
	if _, err := env.engine.AssignJurors(dispute.ID, env.jurors, testApproval); !errors.Is(err, ErrInvalidDisputeStatus) {
		t.Fatalf("expected reassignment to fail, got %v", err)
	}
	assignedTo, err := env.engine.DisputesForJuror(env.jurors[2])
	if err != nil || len(assignedTo) != 1 || assignedTo[0].ID != dispute.ID {
		t.Fatalf("juror index not updated: %v %v", assignedTo, err)
	}
}

func TestSubmitEvidence(t *testing.T) {
	env := newTestEnv(t)
	offer := env.acceptedOffer(1)
	dispute, err := env.engine.OpenDispute(offer.ID, env.buyer, env.seller, "reason")
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if _, err := env.engine.SubmitEvidence(dispute.ID, env.buyer, "https://x"); !errors.Is(err, ErrInvalidDisputeStatus) {
		t.Fatalf("expected evidence before jurors to fail, got %v", err)
	}
	if _, err := env.engine.AssignJurors(dispute.ID, env.jurors, testApproval); err != nil {
		t.Fatalf("assign jurors: %v", err)
	}
	if _, err := env.engine.SubmitEvidence(dispute.ID, env.jurors[0], "https://x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected juror evidence to fail, got %v", err)
	}
	for i := 0; i < MaxEvidenceItems; i++ {
		updated, err := env.engine.SubmitEvidence(dispute.ID, env.seller, "https://seller.example/"+string(rune('a'+i)))
		if err != nil {
			t.Fatalf("submit seller evidence %d: %v", i, err)
		}
		if updated.Status != DisputeStatusEvidenceSubmission {
			t.Fatalf("expected evidence submission status, got %s", updated.Status)
		}
	}
	if _, err := env.engine.SubmitEvidence(dispute.ID, env.seller, "https://overflow"); !errors.Is(err, ErrTooManyEvidenceItems) {
		t.Fatalf("expected evidence cap to apply, got %v", err)
	}
	updated, err := env.engine.SubmitEvidence(dispute.ID, env.buyer, "https://buyer.example/proof")
	if err != nil {
		t.Fatalf("buyer evidence: %v", err)
	}
	if len(updated.SellerEvidence()) != MaxEvidenceItems || len(updated.BuyerEvidence()) != 1 {
		t.Fatalf("evidence routed to wrong side: buyer=%v seller=%v", updated.BuyerEvidence(), updated.SellerEvidence())
	}
	long := "https://" + string(bytes.Repeat([]byte("e"), MaxEvidenceURLLen))
	if _, err := env.engine.SubmitEvidence(dispute.ID, env.buyer, long); !errors.Is(err, ErrInputTooLong) {
		t.Fatalf("expected long url to fail, got %v", err)
	}
}

func TestScenarioCMajorityVerdictPaysBuyer(t *testing.T) {
	env := newTestEnv(t)
	offer, dispute := env.votingDispute(1)

	if _, err := env.engine.CastVote(dispute.ID, env.outside, true); !errors.Is(err, ErrNotAJuror) {
		t.Fatalf("expected outsider vote to fail, got %v", err)
	}
	first, err := env.engine.CastVote(dispute.ID, env.jurors[0], true)
	if err != nil {
		t.Fatalf("vote 1: %v", err)
	}
	if first.Status != DisputeStatusVoting {
		t.Fatalf("expected voting after first ballot, got %s", first.Status)
	}
	if _, err := env.engine.ExecuteVerdict(dispute.ID, env.buyer, env.seller, testApproval); !errors.Is(err, ErrInvalidDisputeStatus) {
		t.Fatalf("expected verdict before majority to fail, got %v", err)
	}
	second, err := env.engine.CastVote(dispute.ID, env.jurors[1], true)
	if err != nil {
		t.Fatalf("vote 2: %v", err)
	}
	if second.Status != DisputeStatusVerdictReached || second.VotesForBuyer != 2 {
		t.Fatalf("expected verdict reached with 2 buyer votes, got %s/%d", second.Status, second.VotesForBuyer)
	}
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[2], false); !errors.Is(err, ErrInvalidDisputeStatus) {
		t.Fatalf("expected third vote after majority to fail, got %v", err)
	}

	if _, err := env.engine.ExecuteVerdict(dispute.ID, env.outside, env.seller, testApproval); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected substituted buyer to fail, got %v", err)
	}
	if _, err := env.engine.ExecuteVerdict(dispute.ID, env.buyer, env.seller, nil); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected missing admin approval to fail, got %v", err)
	}

	buyerBefore := env.balance(env.buyer)
	resolved, err := env.engine.ExecuteVerdict(dispute.ID, env.buyer, env.seller, testApproval)
	if err != nil {
		t.Fatalf("execute verdict: %v", err)
	}
	if resolved.Status != DisputeStatusResolved || resolved.ResolvedAt != env.now {
		t.Fatalf("dispute not resolved: %+v", resolved)
	}
	if got := env.balance(env.buyer) - buyerBefore; got != testAmount+testBond {
		t.Fatalf("expected buyer to receive %d, got %d", testAmount+testBond, got)
	}
	if got := env.vaultBalance(offer.ID); got != testReserve {
		t.Fatalf("expected reserve to remain in vault, got %d", got)
	}
	stored, err := env.engine.Offer(offer.ID)
	if err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if stored.Status != OfferStatusCompleted {
		t.Fatalf("expected completed offer, got %s", stored.Status)
	}
	last := env.emitter.last().Event()
	if last.Type != EventTypeVerdictExecuted || last.Attributes["winner"] != "buyer" {
		t.Fatalf("unexpected final event %+v", last)
	}
	if _, err := env.engine.ExecuteVerdict(dispute.ID, env.buyer, env.seller, testApproval); !errors.Is(err, ErrInvalidDisputeStatus) {
		t.Fatalf("expected second verdict to fail, got %v", err)
	}
	if won, ok := env.hooks.outcomes[env.buyer]; !ok || !won {
		t.Fatalf("expected buyer dispute win to be recorded")
	}
	if won, ok := env.hooks.outcomes[env.seller]; !ok || won {
		t.Fatalf("expected seller dispute loss to be recorded")
	}
	if len(env.hooks.votes) != 2 {
		t.Fatalf("expected two vote rewards, got %d", len(env.hooks.votes))
	}
}

func TestVerdictForSeller(t *testing.T) {
	env := newTestEnv(t)
	_, dispute := env.votingDispute(1)
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[0], false); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[1], true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[2], false); err != nil {
		t.Fatalf("vote: %v", err)
	}
	sellerBefore := env.balance(env.seller)
	if _, err := env.engine.ExecuteVerdict(dispute.ID, env.buyer, env.seller, testApproval); err != nil {
		t.Fatalf("execute verdict: %v", err)
	}
	if got := env.balance(env.seller) - sellerBefore; got != testAmount+testBond {
		t.Fatalf("expected seller to receive %d, got %d", testAmount+testBond, got)
	}
}

func TestScenarioDVoteAfterTotalDeadline(t *testing.T) {
	env := newTestEnv(t)
	_, dispute := env.votingDispute(1)
	env.now = dispute.CreatedAt + DefaultTotalDeadline + 1
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[0], true); !errors.Is(err, ErrDisputeExpired) {
		t.Fatalf("expected ErrDisputeExpired, got %v", err)
	}
	stored, err := env.engine.Dispute(dispute.ID)
	if err != nil {
		t.Fatalf("load dispute: %v", err)
	}
	if stored.VotesForBuyer != 0 || stored.VotesForSeller != 0 {
		t.Fatalf("expired vote must not change tallies")
	}
	if _, found, _ := env.engine.Vote(dispute.ID, env.jurors[0]); found {
		t.Fatalf("expired vote must not create a vote record")
	}
}

func TestVotingWindowExpiry(t *testing.T) {
	env := newTestEnv(t)
	_, dispute := env.votingDispute(1)
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[0], true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	env.now = dispute.CreatedAt + DefaultEvidenceWindow + DefaultVotingWindow + 1
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[1], true); !errors.Is(err, ErrDisputeExpired) {
		t.Fatalf("expected ErrDisputeExpired in voting phase, got %v", err)
	}
}

func TestScenarioEDuplicateVote(t *testing.T) {
	env := newTestEnv(t)
	_, dispute := env.votingDispute(1)
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[0], true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := env.engine.CastVote(dispute.ID, env.jurors[0], false); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	stored, err := env.engine.Dispute(dispute.ID)
	if err != nil {
		t.Fatalf("load dispute: %v", err)
	}
	if stored.VotesForBuyer != 1 || stored.VotesForSeller != 0 {
		t.Fatalf("duplicate vote changed tallies: %d/%d", stored.VotesForBuyer, stored.VotesForSeller)
	}
	vote, found, err := env.engine.Vote(dispute.ID, env.jurors[0])
	if err != nil || !found || !vote.ForBuyer {
		t.Fatalf("original ballot not preserved: %+v %v %v", vote, found, err)
	}
}

func TestTiedVoteRejected(t *testing.T) {
	env := newTestEnv(t)
	offer, dispute := env.votingDispute(1)
	// A tie cannot arise through CastVote; force one to exercise the guard.
	err := env.store.Update(func(tx *state.Tx) error {
		d, err := loadDispute(tx, dispute.ID)
		if err != nil {
			return err
		}
		d.Status = DisputeStatusVerdictReached
		d.VotesForBuyer, d.VotesForSeller = 1, 1
		return putDispute(tx, d)
	})
	if err != nil {
		t.Fatalf("force tie: %v", err)
	}
	if _, err := env.engine.ExecuteVerdict(dispute.ID, env.buyer, env.seller, testApproval); !errors.Is(err, ErrTiedVote) {
		t.Fatalf("expected ErrTiedVote, got %v", err)
	}
	if got := env.vaultBalance(offer.ID); got != testAmount+testBond+testReserve {
		t.Fatalf("tied verdict must not move funds, vault holds %d", got)
	}
}

func TestVerdictToleratesSmallDrift(t *testing.T) {
	env := newTestEnv(t)
	offer, dispute := env.votingDispute(1)
	for _, juror := range env.jurors[:2] {
		if _, err := env.engine.CastVote(dispute.ID, juror, true); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	drift := DefaultVerdictTolerance + 1
	err := env.store.Update(func(tx *state.Tx) error {
		return tx.Transfer(env.seller, offer.Vault, new(big.Int).SetUint64(drift))
	})
	if err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := env.engine.ExecuteVerdict(dispute.ID, env.buyer, env.seller, testApproval); !errors.Is(err, ErrInvalidEscrowBalance) {
		t.Fatalf("expected drift beyond tolerance to fail, got %v", err)
	}
	err = env.store.Update(func(tx *state.Tx) error {
		return tx.Transfer(offer.Vault, env.seller, big.NewInt(2))
	})
	if err != nil {
		t.Fatalf("untamper: %v", err)
	}
	buyerBefore := env.balance(env.buyer)
	if _, err := env.engine.ExecuteVerdict(dispute.ID, env.buyer, env.seller, testApproval); err != nil {
		t.Fatalf("expected drift within tolerance to pass: %v", err)
	}
	if got := env.balance(env.buyer) - buyerBefore; got != testAmount+testBond {
		t.Fatalf("payout must be capped at amount+bond, got %d", got)
	}
}

func TestHookFailuresAreDiscarded(t *testing.T) {
	env := newTestEnv(t)
	env.hooks.fail = true
	offer := env.acceptedOffer(1)
	if _, err := env.engine.MarkFiatSent(offer.ID, env.buyer); err != nil {
		t.Fatalf("mark fiat sent: %v", err)
	}
	if _, err := env.engine.ConfirmFiatReceipt(offer.ID, env.seller); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := env.engine.ReleaseFunds(offer.ID, env.seller, env.buyer); err != nil {
		t.Fatalf("release must succeed despite hook failure: %v", err)
	}
}

func TestPausedModuleRejects(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetPauses(pauseSet{moduleOffers: true})
	if _, err := env.engine.CreateOffer(env.seller, 1, testAmount, 100, "USD", "bank"); Classify(err) != ClassPaused {
		t.Fatalf("expected paused class, got %v", err)
	}
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func TestOfferCooldown(t *testing.T) {
	env := newTestEnv(t)
	params := env.engine.Params()
	params.OfferQuota.CooldownSeconds = DefaultOfferCooldownSeconds
	if err := env.engine.SetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}
	env.createOffer(1)
	_, err := env.engine.CreateOffer(env.seller, 2, testAmount, 100, "USD", "bank")
	if !errors.Is(err, ErrTooManyRequests) || !Retryable(err) {
		t.Fatalf("expected retryable ErrTooManyRequests, got %v", err)
	}
	env.now += int64(DefaultOfferCooldownSeconds)
	if _, err := env.engine.CreateOffer(env.seller, 2, testAmount, 100, "USD", "bank"); err != nil {
		t.Fatalf("expected create after cooldown to succeed: %v", err)
	}
	offers, err := env.engine.OffersBySeller(env.seller)
	if err != nil || len(offers) != 2 {
		t.Fatalf("expected two indexed offers: %v %v", offers, err)
	}
}

func TestDisputeCooldown(t *testing.T) {
	env := newTestEnv(t)
	params := env.engine.Params()
	params.DisputeQuota = DefaultParams().DisputeQuota
	if err := env.engine.SetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}
	offers := make([]*Offer, 4)
	for i := range offers {
		offers[i] = env.acceptedOffer(uint64(i + 1))
	}
	for _, offer := range offers[:2] {
		if _, err := env.engine.OpenDispute(offer.ID, env.buyer, env.seller, "no release"); err != nil {
			t.Fatalf("expected back-to-back disputes without a configured cooldown: %v", err)
		}
	}

	params.DisputeQuota.CooldownSeconds = 600
	if err := env.engine.SetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if _, err := env.engine.OpenDispute(offers[2].ID, env.buyer, env.seller, "no release"); err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	env.now += 10
	_, err := env.engine.OpenDispute(offers[3].ID, env.buyer, env.seller, "no release")
	if !errors.Is(err, ErrTooManyRequests) || !Retryable(err) {
		t.Fatalf("expected retryable ErrTooManyRequests, got %v", err)
	}
	env.now += 600
	if _, err := env.engine.OpenDispute(offers[3].ID, env.buyer, env.seller, "no release"); err != nil {
		t.Fatalf("expected dispute after cooldown to succeed: %v", err)
	}
}
