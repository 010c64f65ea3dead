package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Loan mutations carrying this header are executed at most once per key. A
// retry replays the stored response; a retry that races the first attempt is
// told to wait instead of submitting a second transaction.
const (
	rpcIdempotencyHeader = "X-Microloan-Idempotency-Key"
	idempotencyTTL       = 10 * time.Minute
	idempotencyCap       = 1024
)

const (
	codeIdempotencyConflict = -32030
	codeIdempotencyPending  = -32031
)

type claimState int

const (
	claimFresh claimState = iota
	claimReplay
	claimConflict
	claimPending
)

type idempotencySlot struct {
	fingerprint string
	claimedAt   time.Time
	done        bool
	response    rpcResponse
}

type idempotencyLedger struct {
	mu    sync.Mutex
	slots map[string]*idempotencySlot
}

func newIdempotencyLedger() *idempotencyLedger {
	return &idempotencyLedger{slots: make(map[string]*idempotencySlot)}
}

// claim reserves key for a request with fingerprint. Only claimFresh obliges
// the caller to settle or release the key afterwards.
func (l *idempotencyLedger) claim(key, fingerprint string, now time.Time) (rpcResponse, claimState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(now)

	slot, ok := l.slots[key]
	switch {
	case !ok:
		l.slots[key] = &idempotencySlot{fingerprint: fingerprint, claimedAt: now}
		l.evictLocked()
		return rpcResponse{}, claimFresh
	case slot.fingerprint != fingerprint:
		return rpcResponse{}, claimConflict
	case !slot.done:
		return rpcResponse{}, claimPending
	default:
		return slot.response, claimReplay
	}
}

func (l *idempotencyLedger) settle(key string, resp rpcResponse) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot, ok := l.slots[key]; ok {
		slot.done = true
		slot.response = resp
	}
}

// release forgets an unsettled claim so the caller may retry.
func (l *idempotencyLedger) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot, ok := l.slots[key]; ok && !slot.done {
		delete(l.slots, key)
	}
}

func (l *idempotencyLedger) expireLocked(now time.Time) {
	for key, slot := range l.slots {
		if slot.done && now.Sub(slot.claimedAt) > idempotencyTTL {
			delete(l.slots, key)
		}
	}
}

// evictLocked drops the oldest settled slot once the ledger is over capacity.
// Unsettled claims are never evicted.
func (l *idempotencyLedger) evictLocked() {
	if len(l.slots) <= idempotencyCap {
		return
	}
	var oldest string
	for key, slot := range l.slots {
		if !slot.done {
			continue
		}
		if oldest == "" || slot.claimedAt.Before(l.slots[oldest].claimedAt) {
			oldest = key
		}
	}
	if oldest != "" {
		delete(l.slots, oldest)
	}
}

// idempotencyScope namespaces caller keys by RPC token so two clients cannot
// replay each other's responses.
func idempotencyScope(raw, token string) string {
	if key := strings.TrimSpace(raw); key != "" {
		return token + "|" + key
	}
	return ""
}

func requestFingerprint(req rpcRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Method))
	h.Write([]byte{0})
	h.Write(req.Params)
	return hex.EncodeToString(h.Sum(nil))
}
