package policy

import (
	"math/big"
	"strings"

	"microloan/go-backend/internal/domains/contracts"

	"github.com/shopspring/decimal"
)

// LedgerDecimals is the number of minor-unit digits of the ledger currency (CELO wei).
const LedgerDecimals = 18

// MaxTermDays caps the loan term at one hundred years.
const MaxTermDays = 36_500

// Inputs are rejected on their exponent before any arithmetic: comparing or
// converting "1e200000000" would expand it digit by digit.
const (
	minInputExponent = -2 * LedgerDecimals
	maxInputExponent = 80
)

var (
	minRequestAmount = decimal.RequireFromString("0.1")
	// maxRequestAmount is the largest principal a uint256 can carry.
	maxRequestAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), -LedgerDecimals)
	maxTermDays      = decimal.NewFromInt(MaxTermDays)
)

type LoanRequest struct {
	Amount    decimal.Decimal
	Principal *big.Int
	TermDays  uint64
}

// ValidateRequest normalizes a loan request. It never touches the ledger.
func ValidateRequest(amount, termDays string) (LoanRequest, error) {
	parsedAmount, principal, err := parseAmount(amount)
	if err != nil {
		return LoanRequest{}, err
	}
	days, err := parseTermDays(termDays)
	if err != nil {
		return LoanRequest{}, err
	}
	return LoanRequest{Amount: parsedAmount, Principal: principal, TermDays: days}, nil
}

func parseAmount(raw string) (decimal.Decimal, *big.Int, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, nil, contracts.NewActionError(contracts.KindMinAmount, "amount is not a number", err)
	}
	if !exponentInRange(value) {
		return decimal.Decimal{}, nil, contracts.NewActionError(contracts.KindMinAmount, "amount is out of range", nil)
	}
	if value.LessThan(minRequestAmount) {
		return decimal.Decimal{}, nil, contracts.ErrMinAmount
	}
	if value.GreaterThan(maxRequestAmount) {
		return decimal.Decimal{}, nil, contracts.NewActionError(contracts.KindMinAmount, "amount is out of range", nil)
	}
	minor := value.Shift(LedgerDecimals)
	if !minor.IsInteger() {
		return decimal.Decimal{}, nil, contracts.NewActionError(contracts.KindMinAmount, "amount has more than 18 decimal places", nil)
	}
	return value, minor.BigInt(), nil
}

func parseTermDays(raw string) (uint64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, contracts.NewActionError(contracts.KindInvalidTerm, "term is not a number", err)
	}
	if !exponentInRange(value) || !value.IsInteger() || value.LessThan(decimal.NewFromInt(1)) || value.GreaterThan(maxTermDays) {
		return 0, contracts.ErrInvalidTerm
	}
	return uint64(value.IntPart()), nil
}

func exponentInRange(value decimal.Decimal) bool {
	exp := value.Exponent()
	return exp >= minInputExponent && exp <= maxInputExponent
}

// ToMinorUnits converts a human amount to ledger minor units, rejecting excess precision.
func ToMinorUnits(amount decimal.Decimal) (*big.Int, bool) {
	if !exponentInRange(amount) {
		return nil, false
	}
	minor := amount.Shift(LedgerDecimals)
	if !minor.IsInteger() {
		return nil, false
	}
	return minor.BigInt(), true
}

// FromMinorUnits renders minor units in the human unit.
func FromMinorUnits(minor *big.Int) decimal.Decimal {
	if minor == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(minor, -LedgerDecimals)
}
