package rpckit

import (
	"errors"

	"microloan/go-backend/internal/domains/contracts"
)

// Error is a transport-level RPC error that can be mapped by the caller
// to a concrete wire format (e.g. JSON-RPC error object).
type Error struct {
	Code    int
	Message string
	Data    any
}

const (
	CodeGeneric             = -32000
	CodeBusy                = -32010
	CodeMinAmount           = -32011
	CodeInvalidTerm         = -32012
	CodeTooEarly            = -32013
	CodeUserCancelled       = -32020
	CodeInsufficientPayment = -32021
)

func InvalidParams() *Error {
	return &Error{Code: -32602, Message: "invalid params"}
}

func ServiceError(code int, err error) *Error {
	return &Error{Code: code, Message: err.Error()}
}

// ActionFailure maps a classified loan action error to a stable code. The
// message is the user-facing one; internal causes are never exposed.
func ActionFailure(err error) *Error {
	kind := contracts.KindOf(err)
	message := contracts.ErrGeneric.Message
	var classified *contracts.ActionError
	if errors.As(err, &classified) {
		message = classified.Message
	}
	return &Error{
		Code:    codeForKind(kind),
		Message: message,
		Data: map[string]string{
			"kind":     string(kind),
			"category": contracts.ErrorCategory(err),
		},
	}
}

func codeForKind(kind contracts.ErrorKind) int {
	switch kind {
	case contracts.KindBusy:
		return CodeBusy
	case contracts.KindMinAmount:
		return CodeMinAmount
	case contracts.KindInvalidTerm:
		return CodeInvalidTerm
	case contracts.KindTooEarly:
		return CodeTooEarly
	case contracts.KindUserCancelled:
		return CodeUserCancelled
	case contracts.KindInsufficientPayment:
		return CodeInsufficientPayment
	default:
		return CodeGeneric
	}
}
