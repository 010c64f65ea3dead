package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	loanpolicy "microloan/go-backend/internal/domains/loan/policy"
	loantransport "microloan/go-backend/internal/domains/loan/transport"
	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

type orchestratorFixture struct {
	orch     *Orchestrator
	ledger   *fakeLedger
	clock    *fakeClock
	notifier *recordingNotifier
	metrics  *recordingMetrics
}

func newOrchestratorFixture(t *testing.T) orchestratorFixture {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ledger := &fakeLedger{now: clock.Now}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := &recordingNotifier{}
	metrics := &recordingMetrics{}
	orch := NewOrchestrator(Deps{
		Ledger:          ledger,
		Registry:        NewRegistry(ledger, logger),
		Wallet:          fakeWallet{address: testAccount, chainID: loanpolicy.CeloAlfajoresChainID},
		Classifier:      loanpolicy.NewErrorClassifier(""),
		Metrics:         metrics,
		Notifier:        notifier,
		Logger:          logger,
		Now:             clock.Now,
		ConfirmTimeout:  time.Second,
		ExpectedChainID: loanpolicy.CeloAlfajoresChainID,
	})
	return orchestratorFixture{orch: orch, ledger: ledger, clock: clock, notifier: notifier, metrics: metrics}
}

func (f orchestratorFixture) seedFunded(t *testing.T, termDays uint64, fundedAt time.Time) models.Loan {
	t.Helper()
	funder := testFunder
	loan := models.Loan{
		ID:        uint64(len(f.ledger.loans)),
		Requester: testAccount,
		Funder:    &funder,
		Principal: wei(10),
		Interest:  wei(1),
		TermDays:  termDays,
		Funded:    true,
		MaturesAt: fundedAt.Add(time.Duration(termDays) * 24 * time.Hour),
	}
	f.ledger.loans = append(f.ledger.loans, loan)
	return loan
}

func assertSlotEmpty(t *testing.T, orch *Orchestrator) {
	t.Helper()
	if slot, ok := orch.CurrentAction(); ok {
		t.Fatalf("expected empty action slot, got %#v", slot)
	}
	if snap := orch.Session(); snap.InFlight != nil {
		t.Fatalf("expected no in-flight action in session, got %#v", snap.InFlight)
	}
}

func TestRequestLoanBelowMinimumNeverInvokesLedger(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.RequestLoan(context.Background(), "0.05", "10")
	if !errors.Is(err, contracts.ErrMinAmount) {
		t.Fatalf("expected min amount error, got %v", err)
	}
	if f.ledger.callCount() != 0 {
		t.Fatalf("ledger must not be invoked on validation failure, calls=%d", f.ledger.callCount())
	}
	assertSlotEmpty(t, f.orch)

	_, err = f.orch.RequestLoan(context.Background(), "1", "2.5")
	if !errors.Is(err, contracts.ErrInvalidTerm) {
		t.Fatalf("expected invalid term error, got %v", err)
	}
	if f.ledger.callCount() != 0 {
		t.Fatalf("ledger must not be invoked on validation failure, calls=%d", f.ledger.callCount())
	}
}

func TestRequestLoanConfirmsAndRefreshesActiveList(t *testing.T) {
	f := newOrchestratorFixture(t)

	result, err := f.orch.RequestLoan(context.Background(), "1.0", "30")
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	call := f.ledger.lastCall()
	if call.method != "request" || call.days != 30 {
		t.Fatalf("unexpected ledger call: %#v", call)
	}
	if call.amount.Cmp(wei(10)) != 0 {
		t.Fatalf("expected principal 1e18 wei, got %s", call.amount)
	}
	if result.Kind != models.ActionRequest || result.View != models.ViewRequestForm || result.Stale {
		t.Fatalf("unexpected result: %#v", result)
	}
	if !result.Receipt.Succeeded || result.ActionID == "" {
		t.Fatalf("expected confirmed receipt and action id, got %#v", result)
	}
	if len(result.Loans) != 1 {
		t.Fatalf("expected refreshed active list with one loan, got %d", len(result.Loans))
	}
	loan := result.Loans[0]
	if loan.Funded || loan.Paid || loan.TermDays != 30 {
		t.Fatalf("unexpected new loan: %#v", loan)
	}
	snap := f.orch.Session()
	if len(snap.Active) != 1 || snap.View != models.ViewRequestForm {
		t.Fatalf("session not refreshed: %#v", snap)
	}
	assertSlotEmpty(t, f.orch)
}

func TestFundLoanPassesTotalDueAndRefreshReflectsFundedFlag(t *testing.T) {
	f := newOrchestratorFixture(t)
	if _, err := f.orch.RequestLoan(context.Background(), "1", "10"); err != nil {
		t.Fatalf("request loan: %v", err)
	}
	pending := f.ledger.loans[0]

	result, err := f.orch.FundLoan(context.Background(), pending.ID, pending.TotalDue())
	if err != nil {
		t.Fatalf("fund loan: %v", err)
	}
	if got := f.ledger.lastCall().payment; got.Cmp(pending.TotalDue()) != 0 {
		t.Fatalf("expected payment %s, got %s", pending.TotalDue(), got)
	}
	if len(result.Loans) != 1 || !result.Loans[0].Funded || result.Loans[0].Paid {
		t.Fatalf("refreshed active list must show the funded flag, got %#v", result.Loans)
	}
	funded, err := f.orch.registry.ListByFunder(context.Background(), testFunder)
	if err != nil {
		t.Fatalf("list by funder: %v", err)
	}
	if len(funded) != 1 || !funded[0].Funded {
		t.Fatalf("expected funded flag after refresh, got %#v", funded)
	}
}

func TestFundLoanRejectsNonPositivePayment(t *testing.T) {
	f := newOrchestratorFixture(t)

	for _, payment := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		_, err := f.orch.FundLoan(context.Background(), 1, payment)
		if contracts.KindOf(err) != contracts.KindGeneric {
			t.Fatalf("expected generic error for payment %v, got %v", payment, err)
		}
	}
	if f.ledger.callCount() != 0 {
		t.Fatalf("ledger must not be invoked, calls=%d", f.ledger.callCount())
	}
}

func TestRepayLoanHonorsGraceWindow(t *testing.T) {
	f := newOrchestratorFixture(t)
	t0 := f.clock.Now()
	loan := f.seedFunded(t, 10, t0)

	f.clock.Set(t0.Add(10*24*time.Hour - 48*time.Hour))
	_, err := f.orch.RepayLoan(context.Background(), loan.ID, loan)
	if !errors.Is(err, contracts.ErrTooEarly) {
		t.Fatalf("expected too early, got %v", err)
	}
	if f.ledger.callCount() != 0 {
		t.Fatalf("ledger must not be invoked before the window, calls=%d", f.ledger.callCount())
	}

	f.clock.Set(t0.Add(10*24*time.Hour - 12*time.Hour))
	result, err := f.orch.RepayLoan(context.Background(), loan.ID, loan)
	if err != nil {
		t.Fatalf("repay loan: %v", err)
	}
	if got := f.ledger.lastCall().payment; got.Cmp(wei(11)) != 0 {
		t.Fatalf("expected principal + interest, got %s", got)
	}
	if result.View != models.ViewMyRequests {
		t.Fatalf("expected requester history view after repay, got %s", result.View)
	}
	repaid, ok := models.FindLoan(result.Loans, loan.ID)
	if !ok || !repaid.Paid {
		t.Fatalf("expected paid loan in refreshed history, got %#v", result.Loans)
	}
	assertSlotEmpty(t, f.orch)
}

func TestRepayLoanUnfundedIsTooEarly(t *testing.T) {
	f := newOrchestratorFixture(t)
	loan := models.Loan{ID: 4, Requester: testAccount, Principal: wei(1), Interest: wei(0), TermDays: 3}

	_, err := f.orch.RepayLoan(context.Background(), loan.ID, loan)
	if contracts.KindOf(err) != contracts.KindTooEarly {
		t.Fatalf("expected too early for unfunded loan, got %v", err)
	}
}

func TestFundLoanUserCancelledReleasesSlot(t *testing.T) {
	f := newOrchestratorFixture(t)
	if _, err := f.orch.RequestLoan(context.Background(), "1", "10"); err != nil {
		t.Fatalf("request loan: %v", err)
	}
	f.ledger.submitErr = &contracts.ProviderError{
		Code:    -32603,
		Message: "internal error",
		Data:    map[string]any{"originalError": map[string]any{"code": float64(4001)}},
	}
	loan := f.ledger.loans[0]

	_, err := f.orch.FundLoan(context.Background(), loan.ID, loan.TotalDue())
	if !errors.Is(err, contracts.ErrUserCancelled) {
		t.Fatalf("expected user cancelled, got %v", err)
	}
	assertSlotEmpty(t, f.orch)
	if f.ledger.loans[0].Funded {
		t.Fatalf("loan must remain unfunded")
	}
	methods := f.notifier.methods()
	if len(methods) == 0 || methods[len(methods)-1] != loantransport.NotifyActionFailed {
		t.Fatalf("expected failure notification, got %v", methods)
	}
}

func TestRepayLoanInsufficientPaymentClassified(t *testing.T) {
	f := newOrchestratorFixture(t)
	t0 := f.clock.Now()
	loan := f.seedFunded(t, 1, t0)
	f.ledger.submitErr = errors.New("execution reverted: Monto insuficiente")

	_, err := f.orch.RepayLoan(context.Background(), loan.ID, loan)
	if !errors.Is(err, contracts.ErrInsufficientPayment) {
		t.Fatalf("expected insufficient payment, got %v", err)
	}
	assertSlotEmpty(t, f.orch)
}

func TestActionFailureFallsBackToGenericMessage(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ledger.waitErr = errProvider

	_, err := f.orch.RequestLoan(context.Background(), "1", "10")
	var classified *contracts.ActionError
	if !errors.As(err, &classified) || classified.Kind != contracts.KindGeneric {
		t.Fatalf("expected generic action error, got %v", err)
	}
	if classified.Message != msgRequestFailed+": "+contracts.ErrGeneric.Message {
		t.Fatalf("unexpected message %q", classified.Message)
	}
	if !errors.Is(err, errProvider) {
		t.Fatalf("expected cause to be preserved")
	}
	assertSlotEmpty(t, f.orch)
}

func TestRevertedReceiptIsFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ledger.reverted = true

	_, err := f.orch.RequestLoan(context.Background(), "1", "10")
	if contracts.KindOf(err) != contracts.KindGeneric {
		t.Fatalf("expected generic failure on reverted receipt, got %v", err)
	}
	assertSlotEmpty(t, f.orch)
}

func TestConcurrentActionRejectedAsBusy(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ledger.gate = make(chan struct{})
	f.ledger.entered = make(chan struct{}, 1)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.orch.RequestLoan(context.Background(), "1", "10")
	}()
	<-f.ledger.entered

	slot, ok := f.orch.CurrentAction()
	if !ok || slot.Kind != models.ActionRequest {
		t.Fatalf("expected request in flight, got %#v ok=%v", slot, ok)
	}
	if snap := f.orch.Session(); snap.InFlight == nil || snap.InFlight.ID != slot.ID {
		t.Fatalf("expected session to expose in-flight slot, got %#v", snap.InFlight)
	}

	_, err := f.orch.FundLoan(context.Background(), 0, wei(1))
	if !errors.Is(err, contracts.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if calls := f.ledger.callCount(); calls != 1 {
		t.Fatalf("busy action must not reach the ledger, calls=%d", calls)
	}

	close(f.ledger.gate)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first action failed: %v", firstErr)
	}
	assertSlotEmpty(t, f.orch)

	f.ledger.gate = nil
	if _, err := f.orch.RequestLoan(context.Background(), "2", "5"); err != nil {
		t.Fatalf("slot must be reusable after release: %v", err)
	}
	found := false
	for _, method := range f.notifier.methods() {
		if method == loantransport.NotifyActionBusy {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected busy notification")
	}
}

func TestConfirmTimeoutIsGeneric(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orch.confirmTimeout = 20 * time.Millisecond
	f.ledger.gate = make(chan struct{})

	_, err := f.orch.RequestLoan(context.Background(), "1", "10")
	if contracts.KindOf(err) != contracts.KindGeneric {
		t.Fatalf("expected generic on timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", err)
	}
	assertSlotEmpty(t, f.orch)
}

func TestRefreshFailureAfterConfirmationMarksStale(t *testing.T) {
	f := newOrchestratorFixture(t)
	if _, err := f.orch.ShowView(context.Background(), models.ViewRequestForm); err != nil {
		t.Fatalf("initial view: %v", err)
	}
	// Writes still reach the fake ledger; only the follow-up reads fail.
	f.orch.registry = NewRegistry(failingReader{}, f.orch.logger)
	result, err := f.orch.RequestLoan(context.Background(), "1", "10")
	if err != nil {
		t.Fatalf("confirmed action must succeed even if refresh fails: %v", err)
	}
	if !result.Stale {
		t.Fatalf("expected stale result")
	}
	if len(f.ledger.loans) != 1 {
		t.Fatalf("expected the ledger write to have happened")
	}
}

type failingReader struct{}

func (failingReader) ListActive(context.Context) ([]models.Loan, error) {
	return nil, errProvider
}

func (failingReader) ListByRequester(context.Context, common.Address) ([]models.Loan, error) {
	return nil, errProvider
}

func (failingReader) ListByFunder(context.Context, common.Address) ([]models.Loan, error) {
	return nil, errProvider
}

func TestShowViewKeepsPreviousStateOnFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	if _, err := f.orch.RequestLoan(context.Background(), "1", "10"); err != nil {
		t.Fatalf("request loan: %v", err)
	}
	f.ledger.setListErr(errProvider)

	snap, err := f.orch.ShowView(context.Background(), models.ViewMyFundings)
	if contracts.KindOf(err) != contracts.KindGeneric {
		t.Fatalf("expected generic load error, got %v", err)
	}
	if snap.View != models.ViewRequestForm || len(snap.Active) != 1 {
		t.Fatalf("previous view must be kept, got %#v", snap)
	}
}

func TestShowViewLoadsHistory(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.seedFunded(t, 5, f.clock.Now())

	snap, err := f.orch.ShowView(context.Background(), models.ViewMyRequests)
	if err != nil {
		t.Fatalf("show view: %v", err)
	}
	if snap.View != models.ViewMyRequests || len(snap.History) != 1 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestLookupLoanFallsBackToSessionCache(t *testing.T) {
	f := newOrchestratorFixture(t)
	loan := f.seedFunded(t, 5, f.clock.Now())
	if _, err := f.orch.ShowView(context.Background(), models.ViewMyRequests); err != nil {
		t.Fatalf("show view: %v", err)
	}

	got, err := f.orch.LookupLoan(context.Background(), loan.ID)
	if err != nil || got.ID != loan.ID {
		t.Fatalf("lookup from ledger: %#v %v", got, err)
	}

	f.ledger.setListErr(errProvider)
	got, err = f.orch.LookupLoan(context.Background(), loan.ID)
	if err != nil || got.ID != loan.ID {
		t.Fatalf("lookup from cache: %#v %v", got, err)
	}

	f.ledger.setListErr(nil)
	_, err = f.orch.LookupLoan(context.Background(), 99)
	if !errors.Is(err, contracts.ErrLoanNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNetworkStatusWarnsOnMismatch(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orch.wallet = fakeWallet{address: testAccount, chainID: 1}

	status, err := f.orch.NetworkStatus(context.Background())
	if err != nil {
		t.Fatalf("network status: %v", err)
	}
	if !status.Mismatch || status.Warning == "" || status.ChainID != 1 {
		t.Fatalf("expected mismatch warning, got %#v", status)
	}
	if f.orch.Session().Network.ChainID != 1 {
		t.Fatalf("session network not updated")
	}
	methods := f.notifier.methods()
	if len(methods) != 1 || methods[0] != loantransport.NotifyNetworkMismatch {
		t.Fatalf("expected mismatch notification, got %v", methods)
	}
	if _, err := f.orch.NetworkStatus(context.Background()); err != nil {
		t.Fatalf("second network status: %v", err)
	}
	if got := len(f.notifier.methods()); got != 1 {
		t.Fatalf("a persisting mismatch must be announced once, got %d notifications", got)
	}

	// Advisory only: actions still go through.
	if _, err := f.orch.RequestLoan(context.Background(), "1", "10"); err != nil {
		t.Fatalf("mismatch must not block actions: %v", err)
	}
}

func TestStartLoadsActiveList(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ledger.loans = append(f.ledger.loans, models.Loan{ID: 0, Requester: testFunder, Principal: wei(3), Interest: wei(1), TermDays: 7})

	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := f.orch.Session()
	if len(snap.Active) != 1 || snap.Network.ExpectedChainID != loanpolicy.CeloAlfajoresChainID {
		t.Fatalf("unexpected session after start: %#v", snap)
	}
}

func TestMetricsTrackInFlightAndOutcomes(t *testing.T) {
	f := newOrchestratorFixture(t)
	if _, err := f.orch.RequestLoan(context.Background(), "1", "10"); err != nil {
		t.Fatalf("request loan: %v", err)
	}
	_, _ = f.orch.RequestLoan(context.Background(), "0.01", "10")

	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()
	want := []string{"request:succeeded", fmt.Sprintf("request:%s", contracts.KindMinAmount)}
	if len(f.metrics.outcomes) != len(want) {
		t.Fatalf("unexpected outcomes %v", f.metrics.outcomes)
	}
	for i := range want {
		if f.metrics.outcomes[i] != want[i] {
			t.Fatalf("outcome %d: want %s got %s", i, want[i], f.metrics.outcomes[i])
		}
	}
	if len(f.metrics.inFlight) != 2 || !f.metrics.inFlight[0] || f.metrics.inFlight[1] {
		t.Fatalf("unexpected in-flight transitions %v", f.metrics.inFlight)
	}
}

// stallingReader takes its snapshot of the inner ledger on the first
// ListActive call and then holds it until release is closed.
type stallingReader struct {
	*fakeLedger
	mu      sync.Mutex
	stalled bool
	taken   chan struct{}
	release chan struct{}
}

func (r *stallingReader) ListActive(ctx context.Context) ([]models.Loan, error) {
	loans, err := r.fakeLedger.ListActive(ctx)
	r.mu.Lock()
	first := !r.stalled
	r.stalled = true
	r.mu.Unlock()
	if first {
		r.taken <- struct{}{}
		<-r.release
	}
	return loans, err
}

func TestRefreshAfterFundDoesNotReuseOlderRead(t *testing.T) {
	f := newOrchestratorFixture(t)
	if _, err := f.orch.RequestLoan(context.Background(), "1", "10"); err != nil {
		t.Fatalf("request loan: %v", err)
	}
	pending := f.ledger.loans[0]
	reader := &stallingReader{fakeLedger: f.ledger, taken: make(chan struct{}, 1), release: make(chan struct{})}
	f.orch.registry = NewRegistry(reader, f.orch.logger)

	viewDone := make(chan error, 1)
	go func() {
		_, err := f.orch.ShowView(context.Background(), models.ViewRequestForm)
		viewDone <- err
	}()
	<-reader.taken

	type outcome struct {
		result models.ActionResult
		err    error
	}
	fundDone := make(chan outcome, 1)
	go func() {
		result, err := f.orch.FundLoan(context.Background(), pending.ID, pending.TotalDue())
		fundDone <- outcome{result: result, err: err}
	}()

	var got outcome
	select {
	case got = <-fundDone:
	case <-time.After(2 * time.Second):
		close(reader.release)
		t.Fatalf("fund refresh waited on a read that started before the transaction")
	}
	close(reader.release)
	if err := <-viewDone; err != nil {
		t.Fatalf("show view: %v", err)
	}

	if got.err != nil {
		t.Fatalf("fund loan: %v", got.err)
	}
	if got.result.Stale {
		t.Fatalf("refresh must not be stale")
	}
	loan, ok := models.FindLoan(got.result.Loans, pending.ID)
	if !ok || !loan.Funded {
		t.Fatalf("refresh after fund must show the funded flag, got %#v", got.result.Loans)
	}
}

func TestRepayLoanRejectsSnapshotOfAnotherLoan(t *testing.T) {
	f := newOrchestratorFixture(t)
	t0 := f.clock.Now()
	first := f.seedFunded(t, 1, t0)
	second := f.seedFunded(t, 1, t0)
	f.clock.Set(t0.Add(24 * time.Hour))

	_, err := f.orch.RepayLoan(context.Background(), second.ID, first)
	if contracts.KindOf(err) != contracts.KindGeneric {
		t.Fatalf("expected generic error for mismatched snapshot, got %v", err)
	}
	if f.ledger.callCount() != 0 {
		t.Fatalf("ledger must not be invoked, calls=%d", f.ledger.callCount())
	}
	assertSlotEmpty(t, f.orch)
}
