package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

type treatment int

const (
	keep treatment = iota
	redact
	fingerprint
)

var (
	bootNonce = newBootNonce()

	// Wallet addresses link on-chain history to a person; logs keep only a
	// per-boot fingerprint so lines stay correlatable within one run.
	addressKeys = []string{"requester", "funder", "account", "address", "from", "signer"}
	secretParts = []string{"private_key", "mnemonic", "seed", "token", "secret", "password", "passphrase", "authorization", "auth"}
)

func treatmentFor(key string) treatment {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, part := range secretParts {
		if strings.Contains(key, part) {
			return redact
		}
	}
	for _, addressKey := range addressKeys {
		if key == addressKey {
			return fingerprint
		}
	}
	if strings.HasSuffix(key, "_address") {
		return fingerprint
	}
	return keep
}

// SanitizingHandler redacts secrets and fingerprints wallet addresses before
// records reach the wrapped handler.
type SanitizingHandler struct {
	next slog.Handler
}

// WrapHandler returns next behind a sanitizer. Wrapping twice is a no-op.
func WrapHandler(next slog.Handler) slog.Handler {
	switch h := next.(type) {
	case nil:
		return nil
	case *SanitizingHandler:
		return h
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(sanitizeAll(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

func SanitizeAttr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()
	switch treatmentFor(attr.Key) {
	case redact:
		return slog.String(attr.Key, redactedValue)
	case fingerprint:
		return slog.String(fingerprintKey(attr.Key), FingerprintID(value.String()))
	}
	if value.Kind() == slog.KindGroup {
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(sanitizeAll(value.Group())...)}
	}
	return slog.Attr{Key: attr.Key, Value: value}
}

// SanitizeArgs applies the same rules to alternating key/value logger args.
func SanitizeArgs(args ...any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			out = append(out, args[i])
			continue
		}
		i++
		switch treatmentFor(key) {
		case redact:
			out = append(out, key, redactedValue)
		case fingerprint:
			out = append(out, fingerprintKey(key), FingerprintID(fmt.Sprint(args[i])))
		default:
			out = append(out, key, args[i])
		}
	}
	return out
}

// FingerprintID hashes an identifier with the boot nonce. Hex addresses are
// case-folded first so checksummed and lower-case forms match.
func FingerprintID(value string) string {
	id := strings.TrimSpace(value)
	if id == "" {
		return ""
	}
	if len(id) > 2 && (id[:2] == "0x" || id[:2] == "0X") {
		id = strings.ToLower(id)
	}
	sum := sha256.Sum256([]byte(id + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func sanitizeAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		out[i] = SanitizeAttr(attr)
	}
	return out
}

func fingerprintKey(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func newBootNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
