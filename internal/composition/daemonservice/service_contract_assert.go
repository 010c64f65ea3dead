package daemonservice

import "microloan/go-backend/internal/domains/contracts"

var _ contracts.LoanAPI = (*Service)(nil)
var _ contracts.RegistryAPI = (*Service)(nil)
var _ contracts.SessionAPI = (*Service)(nil)
var _ contracts.NetworkAPI = (*Service)(nil)
var _ contracts.DaemonService = (*Service)(nil)
