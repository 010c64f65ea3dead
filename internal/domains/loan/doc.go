// Package loan provides the public domain facade for microloan actions.
//
// Package layout:
// - adapters: protocol-specific adapters (RPC dispatch and presentation)
// - policy: validation, repay window, network guard and error classification
// - ports: boundary interfaces used by usecases (metrics, notifier, clock)
// - transport: method identifiers and notification names
// - usecase: orchestrator, registry client and session state
//
// External callers should use exports.go as the stable entrypoint.
package loan
