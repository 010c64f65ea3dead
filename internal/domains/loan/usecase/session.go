package usecase

import (
	"sync"
	"time"

	"microloan/go-backend/pkg/models"
)

// Session is the explicit client state owned by the orchestrator: the current
// view, the last-known ledger lists and the network check. It is never persisted.
type Session struct {
	mu          sync.RWMutex
	view        models.ViewMode
	active      []models.Loan
	history     []models.Loan
	network     models.NetworkStatus
	lastRefresh time.Time
}

func NewSession() *Session {
	return &Session{view: models.ViewRequestForm}
}

// apply stores a freshly loaded list for view and makes it current.
func (s *Session) apply(view models.ViewMode, loans []models.Loan, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = view
	if view == models.ViewRequestForm {
		s.active = models.CloneLoans(loans)
	} else {
		s.history = models.CloneLoans(loans)
	}
	s.lastRefresh = at
}

// setNetwork records status and returns the previous one.
func (s *Session) setNetwork(status models.NetworkStatus) models.NetworkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.network
	s.network = status
	return prev
}

func (s *Session) lookup(id uint64) (models.Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if loan, ok := models.FindLoan(s.history, id); ok {
		return loan.Clone(), true
	}
	if loan, ok := models.FindLoan(s.active, id); ok {
		return loan.Clone(), true
	}
	return models.Loan{}, false
}

func (s *Session) snapshot() models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.SessionSnapshot{
		View:        s.view,
		Active:      models.CloneLoans(s.active),
		History:     models.CloneLoans(s.history),
		Network:     s.network,
		LastRefresh: s.lastRefresh,
	}
}
