package contracts

import contractports "microloan/go-backend/internal/domains/contracts/ports"

type CoreAPI = contractports.CoreAPI
type LoanAPI = contractports.LoanAPI
type RegistryAPI = contractports.RegistryAPI
type SessionAPI = contractports.SessionAPI
type NetworkAPI = contractports.NetworkAPI
type DaemonService = contractports.DaemonService
type NotificationEvent = contractports.NotificationEvent
type PendingTx = contractports.PendingTx
type Ledger = contractports.Ledger
type LedgerReader = contractports.LedgerReader
type LedgerWriter = contractports.LedgerWriter
type Wallet = contractports.Wallet
type ErrorKind = contractports.ErrorKind
type ActionError = contractports.ActionError
type ProviderError = contractports.ProviderError
