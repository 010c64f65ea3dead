package usecase

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testFunder  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type fakePending struct {
	hash    common.Hash
	receipt models.Receipt
	err     error
}

func (p fakePending) Hash() common.Hash { return p.hash }

func (p fakePending) Wait(ctx context.Context) (models.Receipt, error) {
	if p.err != nil {
		return models.Receipt{}, p.err
	}
	if err := ctx.Err(); err != nil {
		return models.Receipt{}, err
	}
	return p.receipt, nil
}

type ledgerCall struct {
	method  string
	loanID  uint64
	amount  *big.Int
	days    uint64
	payment *big.Int
}

// fakeLedger applies writes to an in-memory loan table the way the contract would.
// ListActive returns every known loan.
type fakeLedger struct {
	mu       sync.Mutex
	loans    []models.Loan
	calls    []ledgerCall
	reads    int
	nextHash int64

	submitErr error
	waitErr   error
	reverted  bool
	listErr   error
	// gate, when set, blocks submissions until closed; entered is signalled first.
	gate    chan struct{}
	entered chan struct{}
	now     func() time.Time
}

func (l *fakeLedger) ListActive(context.Context) ([]models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.listErr != nil {
		return nil, l.listErr
	}
	return models.CloneLoans(l.loans), nil
}

func (l *fakeLedger) ListByRequester(_ context.Context, requester common.Address) ([]models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.listErr != nil {
		return nil, l.listErr
	}
	out := make([]models.Loan, 0)
	for _, loan := range l.loans {
		if loan.Requester == requester {
			out = append(out, loan.Clone())
		}
	}
	return out, nil
}

func (l *fakeLedger) ListByFunder(_ context.Context, funder common.Address) ([]models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.listErr != nil {
		return nil, l.listErr
	}
	out := make([]models.Loan, 0)
	for _, loan := range l.loans {
		if loan.Funder != nil && *loan.Funder == funder {
			out = append(out, loan.Clone())
		}
	}
	return out, nil
}

func (l *fakeLedger) RequestLoan(ctx context.Context, principal *big.Int, termDays uint64) (contracts.PendingTx, error) {
	return l.submit(ctx, ledgerCall{method: "request", amount: principal, days: termDays}, func() {
		l.loans = append(l.loans, models.Loan{
			ID:        uint64(len(l.loans)),
			Requester: testAccount,
			Principal: new(big.Int).Set(principal),
			Interest:  new(big.Int).Div(principal, big.NewInt(10)),
			TermDays:  termDays,
		})
	})
}

func (l *fakeLedger) FundLoan(ctx context.Context, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	return l.submit(ctx, ledgerCall{method: "fund", loanID: loanID, payment: payment}, func() {
		for i := range l.loans {
			if l.loans[i].ID == loanID {
				funder := testFunder
				l.loans[i].Funded = true
				l.loans[i].Funder = &funder
				l.loans[i].MaturesAt = l.clock().Add(time.Duration(l.loans[i].TermDays) * 24 * time.Hour)
			}
		}
	})
}

func (l *fakeLedger) RepayLoan(ctx context.Context, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	return l.submit(ctx, ledgerCall{method: "repay", loanID: loanID, payment: payment}, func() {
		for i := range l.loans {
			if l.loans[i].ID == loanID {
				l.loans[i].Paid = true
			}
		}
	})
}

func (l *fakeLedger) submit(ctx context.Context, call ledgerCall, apply func()) (contracts.PendingTx, error) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	gate, entered := l.gate, l.entered
	l.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.submitErr != nil {
		return nil, l.submitErr
	}
	l.nextHash++
	hash := common.BigToHash(big.NewInt(l.nextHash))
	if l.waitErr == nil && !l.reverted {
		apply()
	}
	return fakePending{
		hash:    hash,
		receipt: models.Receipt{TxHash: hash, BlockNumber: uint64(l.nextHash), Succeeded: !l.reverted},
		err:     l.waitErr,
	}, nil
}

func (l *fakeLedger) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func (l *fakeLedger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func (l *fakeLedger) lastCall() ledgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return ledgerCall{}
	}
	return l.calls[len(l.calls)-1]
}

func (l *fakeLedger) setListErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listErr = err
}

type fakeWallet struct {
	address common.Address
	chainID uint64
	err     error
}

func (w fakeWallet) Address() common.Address { return w.address }

func (w fakeWallet) ChainID(context.Context) (uint64, error) {
	return w.chainID, w.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type recordedEvent struct {
	method  string
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Publish(method string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{method: method, payload: payload})
}

func (n *recordingNotifier) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.method)
	}
	return out
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	inFlight []bool
}

func (m *recordingMetrics) ObserveAction(kind models.ActionKind, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, string(kind)+":"+outcome)
}

func (m *recordingMetrics) SetInFlight(inFlight bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = append(m.inFlight, inFlight)
}

func (m *recordingMetrics) ObserveRefresh(models.ViewMode, bool) {}

var errProvider = errors.New("rpc: connection reset")

func wei(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e17))
}
