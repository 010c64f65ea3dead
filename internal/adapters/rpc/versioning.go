package rpc

import (
	"slices"

	loantransport "microloan/go-backend/internal/domains/loan/transport"
)

// Clients may pin api_version; requests without it are served as the current version.
const (
	rpcAPIVersion          = 1
	rpcAPIOldestVersion    = 1
	rpcNotificationVersion = 1
)

const (
	codeVersionTooNew = -32080
	codeVersionTooOld = -32081
)

func validateRPCAPIVersion(pinned *int) *rpcError {
	switch {
	case pinned == nil:
		return nil
	case *pinned > rpcAPIVersion:
		return &rpcError{Code: codeVersionTooNew, Message: "rpc api version is newer than this daemon", Data: map[string]int{"current": rpcAPIVersion}}
	case *pinned < rpcAPIOldestVersion:
		return &rpcError{Code: codeVersionTooOld, Message: "rpc api version is no longer served", Data: map[string]int{"oldest": rpcAPIOldestVersion}}
	}
	return nil
}

func isMutatingMethod(method string) bool {
	return slices.Contains(loantransport.Mutations, method)
}

// rpcVersionInfo answers rpc.version so clients can discover the loan surface.
func rpcVersionInfo() map[string]any {
	return map[string]any{
		"current_version":       rpcAPIVersion,
		"min_supported_version": rpcAPIOldestVersion,
		"notification_version":  rpcNotificationVersion,
		"mutations":             loantransport.Mutations,
		"reads":                 loantransport.Reads,
		"notifications":         loantransport.Notifications,
	}
}
