package loan

import (
	"math/big"
	"time"

	loanpolicy "microloan/go-backend/internal/domains/loan/policy"
	"microloan/go-backend/pkg/models"

	"github.com/shopspring/decimal"
)

type LoanRequest = loanpolicy.LoanRequest
type ErrorClassifier = loanpolicy.ErrorClassifier
type NetworkCheck = loanpolicy.NetworkCheck

const (
	CeloAlfajoresChainID           = loanpolicy.CeloAlfajoresChainID
	DefaultInsufficientPaymentText = loanpolicy.DefaultInsufficientPaymentText
	LedgerDecimals                 = loanpolicy.LedgerDecimals
)

func ValidateRequest(amount, termDays string) (LoanRequest, error) {
	return loanpolicy.ValidateRequest(amount, termDays)
}

func CheckRepayWindow(loan models.Loan, now time.Time) error {
	return loanpolicy.CheckRepayWindow(loan, now)
}

func CheckNetwork(current, expected uint64) NetworkCheck {
	return loanpolicy.CheckNetwork(current, expected)
}

func NewErrorClassifier(insufficientPaymentText string) ErrorClassifier {
	return loanpolicy.NewErrorClassifier(insufficientPaymentText)
}

func ToMinorUnits(amount decimal.Decimal) (*big.Int, bool) {
	return loanpolicy.ToMinorUnits(amount)
}

func FromMinorUnits(minor *big.Int) decimal.Decimal {
	return loanpolicy.FromMinorUnits(minor)
}
