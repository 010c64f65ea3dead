package contracts

import (
	"errors"
	"strings"
)

const (
	KindMinAmount           ErrorKind = "min_amount"
	KindInvalidTerm         ErrorKind = "invalid_term"
	KindTooEarly            ErrorKind = "too_early"
	KindUserCancelled       ErrorKind = "user_cancelled"
	KindInsufficientPayment ErrorKind = "insufficient_payment"
	KindGeneric             ErrorKind = "generic"
	KindBusy                ErrorKind = "busy"
)

const (
	ErrorCategoryValidation = "validation"
	ErrorCategoryWallet     = "wallet"
	ErrorCategoryLedger     = "ledger"
	ErrorCategoryBusy       = "busy"
)

var (
	ErrMinAmount           = &ActionError{Kind: KindMinAmount, Message: "minimum amount is 0.1"}
	ErrInvalidTerm         = &ActionError{Kind: KindInvalidTerm, Message: "term must be a whole number of days, at least 1"}
	ErrTooEarly            = &ActionError{Kind: KindTooEarly, Message: "loan is not yet payable: it is neither due nor within one day of maturity"}
	ErrUserCancelled       = &ActionError{Kind: KindUserCancelled, Message: "operation cancelled by the user"}
	ErrInsufficientPayment = &ActionError{Kind: KindInsufficientPayment, Message: "you must pay the full total (principal + interest) to complete the payment"}
	ErrGeneric             = &ActionError{Kind: KindGeneric, Message: "an unexpected error occurred, try again"}
	ErrBusy                = &ActionError{Kind: KindBusy, Message: "another loan action is in progress"}
)

var ErrLoanNotFound = errors.New("loan not found")

func normalizeKind(kind ErrorKind) ErrorKind {
	switch ErrorKind(strings.ToLower(strings.TrimSpace(string(kind)))) {
	case KindMinAmount:
		return KindMinAmount
	case KindInvalidTerm:
		return KindInvalidTerm
	case KindTooEarly:
		return KindTooEarly
	case KindUserCancelled:
		return KindUserCancelled
	case KindInsufficientPayment:
		return KindInsufficientPayment
	case KindBusy:
		return KindBusy
	default:
		return KindGeneric
	}
}

// NewActionError builds a classified error; unknown kinds collapse to generic.
func NewActionError(kind ErrorKind, message string, cause error) *ActionError {
	kind = normalizeKind(kind)
	message = strings.TrimSpace(message)
	if message == "" {
		message = sentinelFor(kind).Message
	}
	return &ActionError{Kind: kind, Message: message, Err: cause}
}

// WrapActionError keeps an existing classification and otherwise applies kind.
func WrapActionError(kind ErrorKind, message string, err error) error {
	if err == nil {
		return nil
	}
	var existing *ActionError
	if errors.As(err, &existing) {
		return existing
	}
	return NewActionError(kind, message, err)
}

func KindOf(err error) ErrorKind {
	var classified *ActionError
	if errors.As(err, &classified) {
		return normalizeKind(classified.Kind)
	}
	return KindGeneric
}

func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindMinAmount, KindInvalidTerm, KindTooEarly:
		return true
	default:
		return false
	}
}

func ErrorCategory(err error) string {
	switch KindOf(err) {
	case KindMinAmount, KindInvalidTerm, KindTooEarly:
		return ErrorCategoryValidation
	case KindUserCancelled:
		return ErrorCategoryWallet
	case KindBusy:
		return ErrorCategoryBusy
	default:
		return ErrorCategoryLedger
	}
}

func sentinelFor(kind ErrorKind) *ActionError {
	switch kind {
	case KindMinAmount:
		return ErrMinAmount
	case KindInvalidTerm:
		return ErrInvalidTerm
	case KindTooEarly:
		return ErrTooEarly
	case KindUserCancelled:
		return ErrUserCancelled
	case KindInsufficientPayment:
		return ErrInsufficientPayment
	case KindBusy:
		return ErrBusy
	default:
		return ErrGeneric
	}
}
