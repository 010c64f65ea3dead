package rpc

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	rpcTokenHeader     = "X-Microloan-RPC-Token"
	rpcRequestIDHeader = "X-Microloan-Request-ID"
)

var corsAllowHeaders = strings.Join([]string{
	"Content-Type", "Accept", "Authorization",
	rpcTokenHeader, rpcRequestIDHeader, rpcIdempotencyHeader,
}, ", ")

// applyCORS admits browser callers served from the local machine only.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	h := w.Header()
	h.Set("Vary", "Origin")
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" {
		if !isAllowedOrigin(origin) {
			http.Error(w, "origin is not allowed", http.StatusForbidden)
			return false
		}
		h.Set("Access-Control-Allow-Origin", origin)
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Expose-Headers", rpcRequestIDHeader)
	return true
}

func (s *Server) authorizeRPC(w http.ResponseWriter, r *http.Request) bool {
	if s.rpcToken == "" && !s.requireRPC {
		return true
	}
	got := s.extractRPCToken(r)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.rpcToken)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// extractRPCToken reads the dedicated header first, then a bearer Authorization.
func (s *Server) extractRPCToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(rpcTokenHeader)); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requiresRPCToken is true unless MICROLOAN_ENV names a dev/test environment;
// there MICROLOAN_REQUIRE_RPC_TOKEN can switch it either way.
func requiresRPCToken() bool {
	override, set := envBool("MICROLOAN_REQUIRE_RPC_TOKEN")
	if !isNonProdEnv() {
		return true
	}
	return set && override
}

func isNonProdEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("MICROLOAN_ENV"))) {
	case "test", "testing", "dev", "development", "local":
		return true
	}
	return false
}

func isAllowedOrigin(raw string) bool {
	if raw == "null" {
		allowed, _ := envBool("MICROLOAN_ALLOW_NULL_ORIGIN")
		return allowed
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func envBool(name string) (value, set bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// resolveRPCToken returns MICROLOAN_RPC_TOKEN. The value "auto", or
// MICROLOAN_RPC_TOKEN_ROTATE_ON_START=true, mints a fresh token and writes it
// to MICROLOAN_RPC_TOKEN_FILE for local clients.
func resolveRPCToken() (string, error) {
	token := strings.TrimSpace(os.Getenv("MICROLOAN_RPC_TOKEN"))
	rotate, _ := envBool("MICROLOAN_RPC_TOKEN_ROTATE_ON_START")
	if !rotate && !strings.EqualFold(token, "auto") {
		return token, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token = "rpc_" + hex.EncodeToString(buf)
	if path := strings.TrimSpace(os.Getenv("MICROLOAN_RPC_TOKEN_FILE")); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
			return "", err
		}
	}
	return token, nil
}
