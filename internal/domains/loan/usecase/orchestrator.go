package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	loanpolicy "microloan/go-backend/internal/domains/loan/policy"
	loanports "microloan/go-backend/internal/domains/loan/ports"
	loantransport "microloan/go-backend/internal/domains/loan/transport"
	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	msgRequestFailed = "Could not request the loan"
	msgFundFailed    = "Could not fund the loan"
	msgRepayFailed   = "Could not repay the loan"
	msgLoadFailed    = "Could not load loans"
)

const tracerName = "microloan/go-backend/loan"

type Deps struct {
	Ledger          contracts.LedgerWriter
	Registry        *Registry
	Wallet          contracts.Wallet
	Classifier      loanpolicy.ErrorClassifier
	Metrics         loanports.ActionMetrics
	Notifier        loanports.Notifier
	Logger          *slog.Logger
	Tracer          trace.Tracer
	Now             loanports.Clock
	ConfirmTimeout  time.Duration
	ExpectedChainID uint64
}

// Orchestrator serializes mutating loan actions, submits them to the ledger,
// waits for confirmation, refreshes the session views and classifies failures.
type Orchestrator struct {
	ledger          contracts.LedgerWriter
	registry        *Registry
	wallet          contracts.Wallet
	classifier      loanpolicy.ErrorClassifier
	metrics         loanports.ActionMetrics
	notifier        loanports.Notifier
	logger          *slog.Logger
	tracer          trace.Tracer
	now             loanports.Clock
	confirmTimeout  time.Duration
	expectedChainID uint64

	guard   actionGuard
	session *Session
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = loanports.NopMetrics{}
	}
	if deps.Notifier == nil {
		deps.Notifier = loanports.NopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Classifier == (loanpolicy.ErrorClassifier{}) {
		deps.Classifier = loanpolicy.NewErrorClassifier("")
	}
	return &Orchestrator{
		ledger:          deps.Ledger,
		registry:        deps.Registry,
		wallet:          deps.Wallet,
		classifier:      deps.Classifier,
		metrics:         deps.Metrics,
		notifier:        deps.Notifier,
		logger:          deps.Logger,
		tracer:          deps.Tracer,
		now:             deps.Now,
		confirmTimeout:  deps.ConfirmTimeout,
		expectedChainID: deps.ExpectedChainID,
		session:         NewSession(),
	}
}

// Start performs the session-start sync: network check and the first active list load.
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, err := o.NetworkStatus(ctx); err != nil {
		o.logger.Warn("network check failed", "error", err.Error())
	}
	_, err := o.ShowView(ctx, models.ViewRequestForm)
	return err
}

func (o *Orchestrator) Account() common.Address {
	return o.wallet.Address()
}

func (o *Orchestrator) Session() models.SessionSnapshot {
	snapshot := o.session.snapshot()
	if slot, ok := o.guard.current(); ok {
		snapshot.InFlight = &slot
	}
	return snapshot
}

func (o *Orchestrator) CurrentAction() (models.ActionSlot, bool) {
	return o.guard.current()
}

// NetworkStatus compares the wallet chain with the expected one. A mismatch is
// reported, never enforced.
func (o *Orchestrator) NetworkStatus(ctx context.Context) (models.NetworkStatus, error) {
	chainID, err := o.wallet.ChainID(ctx)
	if err != nil {
		return models.NetworkStatus{}, err
	}
	check := loanpolicy.CheckNetwork(chainID, o.expectedChainID)
	status := models.NetworkStatus{
		Account:         o.wallet.Address(),
		ChainID:         check.Current,
		ExpectedChainID: check.Expected,
		Mismatch:        check.Mismatch,
		Warning:         check.Warning,
		CheckedAt:       o.now(),
	}
	// Only transitions into a mismatch (or onto another wrong chain) are announced.
	prev := o.session.setNetwork(status)
	if status.Mismatch && (!prev.Mismatch || prev.ChainID != status.ChainID) {
		o.logger.Warn("wallet network mismatch", "chain_id", status.ChainID, "expected_chain_id", status.ExpectedChainID)
		o.notifier.Publish(loantransport.NotifyNetworkMismatch, status)
	}
	return status, nil
}

// ShowView switches the session view and loads its list. On failure the
// previous view and lists are kept.
func (o *Orchestrator) ShowView(ctx context.Context, view models.ViewMode) (models.SessionSnapshot, error) {
	return o.showView(ctx, view, o.registry.ListView)
}

// refreshView is ShowView after a confirmed mutation: the list is read anew
// rather than shared with a read that may predate the transaction.
func (o *Orchestrator) refreshView(ctx context.Context, view models.ViewMode) (models.SessionSnapshot, error) {
	return o.showView(ctx, view, o.registry.Refresh)
}

type viewLoader func(ctx context.Context, view models.ViewMode, account common.Address) ([]models.Loan, error)

func (o *Orchestrator) showView(ctx context.Context, view models.ViewMode, load viewLoader) (models.SessionSnapshot, error) {
	view = models.NormalizeViewMode(string(view))
	loans, err := load(ctx, view, o.wallet.Address())
	o.metrics.ObserveRefresh(view, err != nil)
	if err != nil {
		o.logger.Error("loading loans failed", "view", string(view), "error", err.Error())
		return o.Session(), contracts.WrapActionError(contracts.KindGeneric, msgLoadFailed+": "+contracts.ErrGeneric.Message, err)
	}
	o.session.apply(view, loans, o.now())
	return o.Session(), nil
}

// LookupLoan resolves a loan snapshot, preferring the ledger over cached views.
func (o *Orchestrator) LookupLoan(ctx context.Context, loanID uint64) (models.Loan, error) {
	var queryErr error
	if loans, err := o.registry.ListByRequester(ctx, o.wallet.Address()); err == nil {
		if loan, ok := models.FindLoan(loans, loanID); ok {
			return loan, nil
		}
	} else {
		queryErr = err
	}
	if loans, err := o.registry.ListActive(ctx); err == nil {
		if loan, ok := models.FindLoan(loans, loanID); ok {
			return loan, nil
		}
	} else {
		queryErr = errors.Join(queryErr, err)
	}
	if queryErr != nil {
		if loan, ok := o.session.lookup(loanID); ok {
			o.logger.Warn("using cached loan snapshot", "loan_id", loanID, "error", queryErr.Error())
			return loan, nil
		}
		return models.Loan{}, queryErr
	}
	return models.Loan{}, fmt.Errorf("%w: %d", contracts.ErrLoanNotFound, loanID)
}

func (o *Orchestrator) RequestLoan(ctx context.Context, amount, termDays string) (models.ActionResult, error) {
	req, err := loanpolicy.ValidateRequest(amount, termDays)
	if err != nil {
		return o.rejectLocally(models.ActionRequest, nil, err)
	}
	return o.execute(ctx, action{
		kind:       models.ActionRequest,
		defaultMsg: msgRequestFailed,
		view:       models.ViewRequestForm,
		submit: func(ctx context.Context) (contracts.PendingTx, error) {
			return o.ledger.RequestLoan(ctx, req.Principal, req.TermDays)
		},
	})
}

// FundLoan submits a funding carrying exactly totalDue. Whether the loan is
// still unfunded is decided by the ledger.
func (o *Orchestrator) FundLoan(ctx context.Context, loanID uint64, totalDue *big.Int) (models.ActionResult, error) {
	if totalDue == nil || totalDue.Sign() <= 0 {
		return o.rejectLocally(models.ActionFund, &loanID,
			contracts.NewActionError(contracts.KindGeneric, msgFundFailed+": payment must be positive", nil))
	}
	payment := new(big.Int).Set(totalDue)
	return o.execute(ctx, action{
		kind:       models.ActionFund,
		loanID:     &loanID,
		defaultMsg: msgFundFailed,
		view:       models.ViewRequestForm,
		submit: func(ctx context.Context) (contracts.PendingTx, error) {
			return o.ledger.FundLoan(ctx, loanID, payment)
		},
	})
}

// RepayLoan pays principal + interest once now >= maturity - 24h.
func (o *Orchestrator) RepayLoan(ctx context.Context, loanID uint64, snapshot models.Loan) (models.ActionResult, error) {
	if snapshot.ID != loanID {
		return o.rejectLocally(models.ActionRepay, &loanID, contracts.NewActionError(contracts.KindGeneric,
			fmt.Sprintf("%s: snapshot is for loan %d", msgRepayFailed, snapshot.ID), nil))
	}
	if err := loanpolicy.CheckRepayWindow(snapshot, o.now()); err != nil {
		return o.rejectLocally(models.ActionRepay, &loanID, err)
	}
	payment := snapshot.TotalDue()
	return o.execute(ctx, action{
		kind:       models.ActionRepay,
		loanID:     &loanID,
		defaultMsg: msgRepayFailed,
		view:       models.ViewMyRequests,
		submit: func(ctx context.Context) (contracts.PendingTx, error) {
			return o.ledger.RepayLoan(ctx, loanID, payment)
		},
	})
}

type action struct {
	kind       models.ActionKind
	loanID     *uint64
	defaultMsg string
	view       models.ViewMode
	submit     func(ctx context.Context) (contracts.PendingTx, error)
}

func (o *Orchestrator) rejectLocally(kind models.ActionKind, loanID *uint64, err error) (models.ActionResult, error) {
	o.metrics.ObserveAction(kind, string(contracts.KindOf(err)), 0)
	o.logger.Info("loan action rejected", "action", string(kind), "loan_id", loanIDAttr(loanID), "error_kind", string(contracts.KindOf(err)))
	o.notifier.Publish(loantransport.NotifyActionFailed, failurePayload("", kind, loanID, err))
	return models.ActionResult{}, err
}

func (o *Orchestrator) execute(ctx context.Context, a action) (models.ActionResult, error) {
	slot, release, err := o.guard.acquire(a.kind, a.loanID, o.now())
	if err != nil {
		o.metrics.ObserveAction(a.kind, string(contracts.KindBusy), 0)
		o.notifier.Publish(loantransport.NotifyActionBusy, failurePayload("", a.kind, a.loanID, err))
		return models.ActionResult{}, err
	}
	o.metrics.SetInFlight(true)
	defer func() {
		release()
		o.metrics.SetInFlight(false)
	}()

	ctx, span := o.tracer.Start(ctx, "loan."+string(a.kind), trace.WithAttributes(
		attribute.String("loan.action_id", slot.ID),
		attribute.String("loan.action", string(a.kind)),
	))
	defer span.End()
	if a.loanID != nil {
		span.SetAttributes(attribute.Int64("loan.id", int64(*a.loanID)))
	}

	started := o.now()
	o.logger.Info("loan action started", "action_id", slot.ID, "action", string(a.kind), "loan_id", loanIDAttr(a.loanID))

	receipt, err := o.submitAndConfirm(ctx, a)
	elapsed := o.now().Sub(started)
	if err != nil {
		classified := o.classifier.Classify(err, a.defaultMsg)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(classified.Kind))
		o.metrics.ObserveAction(a.kind, string(classified.Kind), elapsed)
		o.logger.Warn("loan action failed",
			"action_id", slot.ID,
			"action", string(a.kind),
			"loan_id", loanIDAttr(a.loanID),
			"error_kind", string(classified.Kind),
			"error", err.Error(),
			"latency_ms", elapsed.Milliseconds(),
		)
		o.notifier.Publish(loantransport.NotifyActionFailed, failurePayload(slot.ID, a.kind, a.loanID, classified))
		return models.ActionResult{}, classified
	}
	span.SetAttributes(attribute.String("loan.tx_hash", receipt.TxHash.Hex()))

	result := models.ActionResult{
		ActionID: slot.ID,
		Kind:     a.kind,
		LoanID:   copyLoanID(a.loanID),
		Receipt:  receipt,
		View:     a.view,
	}
	// The ledger state already changed; a failed refresh only leaves the view stale.
	snapshot, refreshErr := o.refreshView(ctx, a.view)
	if refreshErr != nil {
		result.Stale = true
		result.View = snapshot.View
	}
	result.Loans = listForView(snapshot, result.View)

	o.metrics.ObserveAction(a.kind, "succeeded", elapsed)
	o.logger.Info("loan action confirmed",
		"action_id", slot.ID,
		"action", string(a.kind),
		"loan_id", loanIDAttr(a.loanID),
		"tx_hash", receipt.TxHash.Hex(),
		"block", receipt.BlockNumber,
		"stale", result.Stale,
		"latency_ms", elapsed.Milliseconds(),
	)
	o.notifier.Publish(loantransport.NotifyActionSucceeded, map[string]any{
		"action_id": slot.ID,
		"action":    a.kind,
		"loan_id":   a.loanID,
		"tx_hash":   receipt.TxHash.Hex(),
	})
	return result, nil
}

func (o *Orchestrator) submitAndConfirm(ctx context.Context, a action) (models.Receipt, error) {
	if o.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.confirmTimeout)
		defer cancel()
	}
	pending, err := a.submit(ctx)
	if err != nil {
		return models.Receipt{}, err
	}
	receipt, err := pending.Wait(ctx)
	if err != nil {
		return models.Receipt{}, err
	}
	if !receipt.Succeeded {
		return receipt, fmt.Errorf("transaction %s reverted", receipt.TxHash.Hex())
	}
	return receipt, nil
}

func listForView(snapshot models.SessionSnapshot, view models.ViewMode) []models.Loan {
	if view == models.ViewRequestForm {
		return snapshot.Active
	}
	return snapshot.History
}

func failurePayload(actionID string, kind models.ActionKind, loanID *uint64, err error) map[string]any {
	return map[string]any{
		"action_id": actionID,
		"action":    kind,
		"loan_id":   loanID,
		"kind":      contracts.KindOf(err),
		"message":   err.Error(),
	}
}

func loanIDAttr(id *uint64) any {
	if id == nil {
		return "none"
	}
	return *id
}
