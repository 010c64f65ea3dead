package models

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type LoanStatus string

const (
	LoanPending LoanStatus = "pending"
	LoanFunded  LoanStatus = "funded"
	LoanRepaid  LoanStatus = "repaid"
)

// RepayGracePeriod is how long before maturity a funded loan becomes payable.
const RepayGracePeriod = 24 * time.Hour

var (
	ErrLoanPrincipal = errors.New("loan principal must be positive")
	ErrLoanInterest  = errors.New("loan interest must not be negative")
	ErrLoanTerm      = errors.New("loan term must be at least one day")
	ErrLoanPaidFlag  = errors.New("loan is paid but not funded")
	ErrLoanFunder    = errors.New("loan funder must be present iff funded")
	ErrLoanMaturity  = errors.New("loan maturity must be present iff funded")
)

type Loan struct {
	ID        uint64          `json:"id"`
	Requester common.Address  `json:"requester"`
	Funder    *common.Address `json:"funder,omitempty"`
	Principal *big.Int        `json:"principal"`
	Interest  *big.Int        `json:"interest"`
	TermDays  uint64          `json:"term_days"`
	Funded    bool            `json:"funded"`
	Paid      bool            `json:"paid"`
	MaturesAt time.Time       `json:"matures_at,omitempty"`
}

// TotalDue returns principal + interest. Nil amounts count as zero.
func (l Loan) TotalDue() *big.Int {
	total := new(big.Int)
	if l.Principal != nil {
		total.Add(total, l.Principal)
	}
	if l.Interest != nil {
		total.Add(total, l.Interest)
	}
	return total
}

func (l Loan) Status() LoanStatus {
	switch {
	case l.Paid:
		return LoanRepaid
	case l.Funded:
		return LoanFunded
	default:
		return LoanPending
	}
}

// PayableFrom is the earliest instant a repayment is accepted locally.
// ok is false while the loan has no maturity.
func (l Loan) PayableFrom() (time.Time, bool) {
	if !l.Funded || l.MaturesAt.IsZero() {
		return time.Time{}, false
	}
	return l.MaturesAt.Add(-RepayGracePeriod), true
}

func (l Loan) CheckInvariants() error {
	if l.Principal == nil || l.Principal.Sign() <= 0 {
		return ErrLoanPrincipal
	}
	if l.Interest != nil && l.Interest.Sign() < 0 {
		return ErrLoanInterest
	}
	if l.TermDays < 1 {
		return ErrLoanTerm
	}
	if l.Paid && !l.Funded {
		return ErrLoanPaidFlag
	}
	if (l.Funder != nil) != l.Funded {
		return ErrLoanFunder
	}
	if l.MaturesAt.IsZero() == l.Funded {
		return ErrLoanMaturity
	}
	return nil
}

// Clone returns a deep copy so cached views never share big.Int pointers with callers.
func (l Loan) Clone() Loan {
	out := l
	if l.Principal != nil {
		out.Principal = new(big.Int).Set(l.Principal)
	}
	if l.Interest != nil {
		out.Interest = new(big.Int).Set(l.Interest)
	}
	if l.Funder != nil {
		funder := *l.Funder
		out.Funder = &funder
	}
	return out
}

func CloneLoans(loans []Loan) []Loan {
	if loans == nil {
		return nil
	}
	out := make([]Loan, 0, len(loans))
	for _, loan := range loans {
		out = append(out, loan.Clone())
	}
	return out
}

func FindLoan(loans []Loan, id uint64) (Loan, bool) {
	for _, loan := range loans {
		if loan.ID == id {
			return loan, true
		}
	}
	return Loan{}, false
}
