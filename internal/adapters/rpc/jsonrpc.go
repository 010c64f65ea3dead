package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	loanrpc "microloan/go-backend/internal/domains/loan/adapters/rpc"

	"github.com/google/uuid"
)

type rpcRequest struct {
	JSONRPC    string          `json:"jsonrpc"`
	ID         json.RawMessage `json:"id"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params"`
	APIVersion *int            `json:"api_version,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.preflight(w, r, http.MethodPost, true) {
		return
	}

	token := s.extractRPCToken(r)
	clientKey := callerKey(r, token)
	if !s.readLimiter.Allow(clientKey, time.Now()) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32700, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	reqID := requestCorrelationID(r)
	w.Header().Set(rpcRequestIDHeader, reqID)
	logger := s.logger.With("request_id", reqID, "method", req.Method)

	if verErr := validateRPCAPIVersion(req.APIVersion); verErr != nil {
		writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: verErr})
		return
	}

	mutating := isMutatingMethod(req.Method)
	if mutating && !s.writeLimiter.Allow(clientKey, time.Now()) {
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32029, Message: "too many loan actions; slow down"},
		})
		return
	}

	idemKey := ""
	if mutating {
		idemKey = idempotencyScope(r.Header.Get(rpcIdempotencyHeader), token)
	}
	if idemKey != "" {
		cached, state := s.idempotency.claim(idemKey, requestFingerprint(req), time.Now())
		switch state {
		case claimConflict:
			writeRPC(w, rpcResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &rpcError{Code: codeIdempotencyConflict, Message: "idempotency key reused with different request"},
			})
			return
		case claimPending:
			writeRPC(w, rpcResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &rpcError{Code: codeIdempotencyPending, Message: "a request with this idempotency key is still running"},
			})
			return
		case claimReplay:
			cached.ID = req.ID
			logger.Info("rpc replayed from idempotency cache")
			writeRPC(w, cached)
			return
		}
		// No-op once settled; frees the key if dispatch panics.
		defer s.idempotency.release(idemKey)
	}

	started := time.Now()
	logger.Info("rpc request", "rpc_id", string(req.ID))

	// A submitted transaction must be confirmed or classified even if the
	// client goes away; the orchestrator bounds the wait on its own.
	ctx := r.Context()
	if mutating {
		ctx = context.WithoutCancel(ctx)
	}
	result, rpcErr, known := s.dispatchRPC(ctx, req.Method, req.Params)
	status := "ok"
	if rpcErr != nil {
		status = "error"
		logger.Error("rpc failed", "rpc_code", rpcErr.Code, "latency_ms", time.Since(started).Milliseconds())
	} else {
		logger.Info("rpc response", "latency_ms", time.Since(started).Milliseconds())
	}
	if s.observer != nil {
		s.observer.ObserveRPC(req.Method, status, known)
	}
	resp := rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	}
	if idemKey != "" && cacheable(resp) {
		s.idempotency.settle(idemKey, resp)
	}
	writeRPC(w, resp)
}

func (s *Server) dispatchRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError, bool) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil, true
	case "rpc.version":
		return rpcVersionInfo(), nil, true
	}
	if s.service == nil {
		return nil, &rpcError{Code: -32099, Message: "service is not initialized"}, true
	}
	if result, kitErr, ok := loanrpc.Dispatch(ctx, s.service, method, rawParams); ok {
		return result, fromKitError(kitErr), true
	}
	return nil, &rpcError{Code: -32601, Message: "method not found"}, false
}

// requestCorrelationID prefers the caller's id so UI and daemon logs line up.
func requestCorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(rpcRequestIDHeader)); id != "" && len(id) <= 128 {
		return id
	}
	return "rpc_" + uuid.NewString()
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: -32600, Message: "invalid request"},
	})
}
