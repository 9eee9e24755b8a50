package jobs

import (
	"context"
	"log"
	"time"
)

type tokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// TokenCleanupJob deletes expired and consumed email verification and
// password reset tokens
type TokenCleanupJob struct {
	users    tokenPurger
	interval time.Duration
}

// NewTokenCleanupJob creates a new token cleanup job
func NewTokenCleanupJob(users tokenPurger, interval time.Duration) *TokenCleanupJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TokenCleanupJob{users: users, interval: interval}
}

// Run purges expired tokens
func (j *TokenCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.users.PurgeExpiredTokens(ctx)
	if err != nil {
		log.Printf("[TOKEN-CLEANUP] Failed to purge tokens: %v", err)
		return err
	}

	if deleted > 0 {
		log.Printf("[TOKEN-CLEANUP] Purged %d expired tokens", deleted)
	}
	return nil
}

// Interval returns how often the job runs
func (j *TokenCleanupJob) Interval() time.Duration {
	return j.interval
}
