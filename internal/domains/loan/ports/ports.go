package ports

import (
	"time"

	"microloan/go-backend/pkg/models"
)

// ActionMetrics records orchestrator outcomes; implementations must be safe for concurrent use.
type ActionMetrics interface {
	ObserveAction(kind models.ActionKind, outcome string, elapsed time.Duration)
	SetInFlight(inFlight bool)
	ObserveRefresh(view models.ViewMode, failed bool)
}

type Notifier interface {
	Publish(method string, payload any)
}

type Clock func() time.Time

type NopMetrics struct{}

func (NopMetrics) ObserveAction(models.ActionKind, string, time.Duration) {}
func (NopMetrics) SetInFlight(bool)                                      {}
func (NopMetrics) ObserveRefresh(models.ViewMode, bool)                  {}

type NopNotifier struct{}

func (NopNotifier) Publish(string, any) {}
