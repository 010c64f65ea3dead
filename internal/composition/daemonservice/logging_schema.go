package daemonservice

import (
	"context"
	"log/slog"
	"strconv"

	"microloan/go-backend/internal/domains/contracts"
)

// noSubject marks service log lines that do not concern a single loan.
const noSubject = "n/a"

func loanSubject(loanID uint64) string {
	return "loan:" + strconv.FormatUint(loanID, 10)
}

// logEvent writes one service line keyed by operation and subject so a loan's
// lifecycle can be followed across actions.
func (s *Service) logEvent(level slog.Level, operation, subject, message string, attrs ...any) {
	s.logger.Log(context.Background(), level, message,
		append([]any{"component", "daemonservice", "operation", operation, "correlation_id", subject}, attrs...)...)
}

func (s *Service) logFailure(category string, err error, operation, subject string) {
	if err == nil {
		return
	}
	s.logEvent(slog.LevelError, operation, subject, "service error",
		"category", category,
		"error_kind", string(contracts.KindOf(err)),
		"error", err.Error(),
	)
}
