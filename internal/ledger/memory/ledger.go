package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultInterestBps is the flat interest charged on the principal (10%).
const DefaultInterestBps = 1000

var (
	ErrInvalidAmount      = errors.New("execution reverted: Monto invalido")
	ErrInvalidTerm        = errors.New("execution reverted: Plazo invalido")
	ErrLoanNotFound       = errors.New("execution reverted: Prestamo inexistente")
	ErrAlreadyFunded      = errors.New("execution reverted: Prestamo ya financiado")
	ErrNotFunded          = errors.New("execution reverted: Prestamo no financiado")
	ErrAlreadyPaid        = errors.New("execution reverted: Prestamo ya pagado")
	ErrNotRequester       = errors.New("execution reverted: Solo el solicitante puede pagar")
	ErrInsufficientAmount = errors.New("execution reverted: Monto insuficiente")
)

type Config struct {
	Account     common.Address
	InterestBps int64
	Now         func() time.Time
}

// Ledger is an in-process stand-in for the loan contract. Writes are applied
// atomically at submission and reported as already mined.
type Ledger struct {
	mu          sync.Mutex
	account     common.Address
	interestBps int64
	now         func() time.Time
	loans       []models.Loan
	block       uint64
}

var _ contracts.Ledger = (*Ledger)(nil)

func New(cfg Config) *Ledger {
	if cfg.InterestBps <= 0 {
		cfg.InterestBps = DefaultInterestBps
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{account: cfg.Account, interestBps: cfg.InterestBps, now: cfg.Now}
}

// As returns a view of the same ledger acting for another account.
func (l *Ledger) As(account common.Address) contracts.Ledger {
	return &accountView{ledger: l, account: account}
}

func (l *Ledger) ListActive(context.Context) ([]models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.CloneLoans(l.loans), nil
}

func (l *Ledger) ListByRequester(_ context.Context, requester common.Address) ([]models.Loan, error) {
	return l.filter(func(loan models.Loan) bool { return loan.Requester == requester }), nil
}

func (l *Ledger) ListByFunder(_ context.Context, funder common.Address) ([]models.Loan, error) {
	return l.filter(func(loan models.Loan) bool { return loan.Funder != nil && *loan.Funder == funder }), nil
}

func (l *Ledger) RequestLoan(ctx context.Context, principal *big.Int, termDays uint64) (contracts.PendingTx, error) {
	return l.requestAs(ctx, l.account, principal, termDays)
}

func (l *Ledger) FundLoan(ctx context.Context, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	return l.fundAs(ctx, l.account, loanID, payment)
}

func (l *Ledger) RepayLoan(ctx context.Context, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	return l.repayAs(ctx, l.account, loanID, payment)
}

func (l *Ledger) requestAs(ctx context.Context, from common.Address, principal *big.Int, termDays uint64) (contracts.PendingTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if principal == nil || principal.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if termDays < 1 {
		return nil, ErrInvalidTerm
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	interest := new(big.Int).Mul(principal, big.NewInt(l.interestBps))
	interest.Quo(interest, big.NewInt(10_000))
	l.loans = append(l.loans, models.Loan{
		ID:        uint64(len(l.loans)),
		Requester: from,
		Principal: new(big.Int).Set(principal),
		Interest:  interest,
		TermDays:  termDays,
	})
	return l.mineLocked(from), nil
}

// fundAs requires at least the principal; callers normally send principal + interest.
func (l *Ledger) fundAs(ctx context.Context, from common.Address, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	loan, err := l.loanLocked(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Funded {
		return nil, ErrAlreadyFunded
	}
	if payment == nil || payment.Cmp(loan.Principal) < 0 {
		return nil, ErrInsufficientAmount
	}
	funder := from
	loan.Funded = true
	loan.Funder = &funder
	loan.MaturesAt = l.now().Add(time.Duration(loan.TermDays) * 24 * time.Hour).UTC().Truncate(time.Second)
	return l.mineLocked(from), nil
}

func (l *Ledger) repayAs(ctx context.Context, from common.Address, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	loan, err := l.loanLocked(loanID)
	if err != nil {
		return nil, err
	}
	switch {
	case !loan.Funded:
		return nil, ErrNotFunded
	case loan.Paid:
		return nil, ErrAlreadyPaid
	case loan.Requester != from:
		return nil, ErrNotRequester
	}
	if payment == nil || payment.Cmp(loan.TotalDue()) < 0 {
		return nil, ErrInsufficientAmount
	}
	loan.Paid = true
	return l.mineLocked(from), nil
}

func (l *Ledger) loanLocked(id uint64) (*models.Loan, error) {
	if id >= uint64(len(l.loans)) {
		return nil, ErrLoanNotFound
	}
	return &l.loans[id], nil
}

func (l *Ledger) mineLocked(from common.Address) *minedTx {
	l.block++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], l.block)
	hash := sha256.Sum256(append(from.Bytes(), seed[:]...))
	return &minedTx{receipt: models.Receipt{
		TxHash:      common.Hash(hash),
		BlockNumber: l.block,
		GasUsed:     21_000,
		Succeeded:   true,
	}}
}

func (l *Ledger) filter(keep func(models.Loan) bool) []models.Loan {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Loan, 0)
	for _, loan := range l.loans {
		if keep(loan) {
			out = append(out, loan.Clone())
		}
	}
	return out
}

type minedTx struct {
	receipt models.Receipt
}

func (t *minedTx) Hash() common.Hash {
	return t.receipt.TxHash
}

func (t *minedTx) Wait(ctx context.Context) (models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return models.Receipt{}, err
	}
	return t.receipt, nil
}

type accountView struct {
	ledger  *Ledger
	account common.Address
}

func (v *accountView) ListActive(ctx context.Context) ([]models.Loan, error) {
	return v.ledger.ListActive(ctx)
}

func (v *accountView) ListByRequester(ctx context.Context, requester common.Address) ([]models.Loan, error) {
	return v.ledger.ListByRequester(ctx, requester)
}

func (v *accountView) ListByFunder(ctx context.Context, funder common.Address) ([]models.Loan, error) {
	return v.ledger.ListByFunder(ctx, funder)
}

func (v *accountView) RequestLoan(ctx context.Context, principal *big.Int, termDays uint64) (contracts.PendingTx, error) {
	return v.ledger.requestAs(ctx, v.account, principal, termDays)
}

func (v *accountView) FundLoan(ctx context.Context, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	return v.ledger.fundAs(ctx, v.account, loanID, payment)
}

func (v *accountView) RepayLoan(ctx context.Context, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	return v.ledger.repayAs(ctx, v.account, loanID, payment)
}
