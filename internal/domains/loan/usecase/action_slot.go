package usecase

import (
	"sync"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	"microloan/go-backend/pkg/models"

	"github.com/google/uuid"
)

// actionGuard holds the single in-flight mutating action. A second acquire
// while occupied fails immediately with contracts.ErrBusy.
type actionGuard struct {
	mu   sync.Mutex
	slot *models.ActionSlot
}

func (g *actionGuard) acquire(kind models.ActionKind, loanID *uint64, now time.Time) (models.ActionSlot, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slot != nil {
		return models.ActionSlot{}, nil, contracts.ErrBusy
	}
	slot := models.ActionSlot{
		ID:        uuid.NewString(),
		Kind:      kind,
		LoanID:    copyLoanID(loanID),
		StartedAt: now,
	}
	g.slot = &slot

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.slot = nil
		})
	}
	return slot, release, nil
}

func (g *actionGuard) current() (models.ActionSlot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slot == nil {
		return models.ActionSlot{}, false
	}
	out := *g.slot
	out.LoanID = copyLoanID(g.slot.LoanID)
	return out, true
}

func copyLoanID(id *uint64) *uint64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
