package rpc

import "microloan/go-backend/internal/domains/rpckit"

func fromKitError(err *rpckit.Error) *rpcError {
	if err == nil {
		return nil
	}
	return &rpcError{Code: err.Code, Message: err.Message, Data: err.Data}
}

// cacheable reports whether a response may be replayed for its idempotency
// key. A busy reply means nothing was submitted, so a retry must run again.
func cacheable(resp rpcResponse) bool {
	return resp.Error == nil || resp.Error.Code != rpckit.CodeBusy
}
