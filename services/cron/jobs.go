package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/learnhub-api/model"
)

// ExpireStalePayments fails PENDING payments whose external order was
// never completed. Runs every 5 minutes so abandoned checkouts reach a
// terminal state instead of sitting PENDING forever.
func (m *CronManager) ExpireStalePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	jobName := "expire_stale_payments"

	expired, err := m.payments.ExpireStalePayments(ctx)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	if expired == 0 {
		m.logJobComplete(jobName, "No stale payments")
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Expired %d stale payments", expired))
}

// CleanupOldData removes expired blacklist tokens and trims cron logs
// older than 30 days. Runs daily.
func (m *CronManager) CleanupOldData() {
	jobName := "cleanup_old_data"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := m.blacklist.CleanupExpiredTokens(ctx); err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to cleanup blacklist tokens: %w", err))
		return
	}

	cutoff := time.Now().AddDate(0, 0, -30)
	if err := m.db.
		Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&model.CronJobLog{}).
		Error; err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to cleanup cron logs: %w", err))
		return
	}

	m.logJobComplete(jobName, "Old data cleaned up")
}
