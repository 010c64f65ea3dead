package policy

import (
	"encoding/json"
	"errors"
	"strings"

	"microloan/go-backend/internal/domains/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UserRejectedCode is the EIP-1193 "user rejected the request" provider code.
const UserRejectedCode = 4001

// DefaultInsufficientPaymentText is the revert reason of the Microcredito contract for underpaid repayments.
const DefaultInsufficientPaymentText = "Monto insuficiente"

type codeCarrier interface {
	ErrorCode() int
}

type dataCarrier interface {
	ErrorData() any
}

type ErrorClassifier struct {
	insufficientPaymentText string
}

func NewErrorClassifier(insufficientPaymentText string) ErrorClassifier {
	insufficientPaymentText = strings.TrimSpace(insufficientPaymentText)
	if insufficientPaymentText == "" {
		insufficientPaymentText = DefaultInsufficientPaymentText
	}
	return ErrorClassifier{insufficientPaymentText: insufficientPaymentText}
}

// Classify maps an opaque failure to exactly one of UserCancelled,
// InsufficientPayment or Generic(defaultMessage). Errors that are already
// classified are returned unchanged; nil stays nil.
func (c ErrorClassifier) Classify(raw error, defaultMessage string) *contracts.ActionError {
	if raw == nil {
		return nil
	}
	var classified *contracts.ActionError
	if errors.As(raw, &classified) {
		return classified
	}
	if isUserRejected(raw) {
		return contracts.NewActionError(contracts.KindUserCancelled, "", raw)
	}
	if c.isInsufficientPayment(raw) {
		return contracts.NewActionError(contracts.KindInsufficientPayment, "", raw)
	}
	return contracts.NewActionError(contracts.KindGeneric, genericMessage(defaultMessage), raw)
}

func genericMessage(defaultMessage string) string {
	defaultMessage = strings.TrimSpace(defaultMessage)
	if defaultMessage == "" {
		return contracts.ErrGeneric.Message
	}
	return defaultMessage + ": " + contracts.ErrGeneric.Message
}

func isUserRejected(err error) bool {
	var coded codeCarrier
	if errors.As(err, &coded) && coded.ErrorCode() == UserRejectedCode {
		return true
	}
	var withData dataCarrier
	if !errors.As(err, &withData) {
		return false
	}
	code, ok := originalErrorCode(withData.ErrorData())
	return ok && code == UserRejectedCode
}

func originalErrorCode(data any) (int64, bool) {
	fields, ok := data.(map[string]any)
	if !ok {
		return 0, false
	}
	original, ok := fields["originalError"].(map[string]any)
	if !ok {
		return 0, false
	}
	return numericCode(original["code"])
}

func numericCode(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		parsed, err := n.Int64()
		return parsed, err == nil
	default:
		return 0, false
	}
}

func (c ErrorClassifier) isInsufficientPayment(err error) bool {
	if strings.Contains(err.Error(), c.insufficientPaymentText) {
		return true
	}
	var withData dataCarrier
	if !errors.As(err, &withData) {
		return false
	}
	reason, ok := revertReason(withData.ErrorData())
	return ok && strings.Contains(reason, c.insufficientPaymentText)
}

// revertReason decodes Error(string) revert data as returned by eth_call/eth_estimateGas.
func revertReason(data any) (string, bool) {
	encoded, ok := data.(string)
	if !ok || !strings.HasPrefix(encoded, "0x") {
		return "", false
	}
	payload, err := hexutil.Decode(encoded)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(payload)
	if err != nil {
		return "", false
	}
	return reason, true
}
