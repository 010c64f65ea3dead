// Package daemonservice assembles the loan domain into the long-running daemon
// service consumed by the RPC transport.
//
// Responsibilities:
// - Resolve the acting wallet and wire ledger, registry, orchestrator and notifications.
// - Resolve loan snapshots so transport callers can act by loan id alone.
// - Own the runtime lifecycle (session start sync, network watch loop).
//
// Non-responsibilities:
// - Domain rules and action semantics (internal/domains/loan).
// - Dialing ledger nodes or loading keys (internal/composition/daemon/servicefactory).
//
//goland:noinspection GoCommentStart
package daemonservice
