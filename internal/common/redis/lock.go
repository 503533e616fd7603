package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	lockTTLBuffer = 30 * time.Second
	minLockTTL    = time.Minute

	// Lock operations use their own timeout so a cancelled request cannot leave the lock half-set
	lockOperationTimeout = 3 * time.Second
)

// releaseScript deletes the lock only if this holder still owns it
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// SiteLock allows one running job per site across service instances
type SiteLock struct {
	client *Client
	logger *zap.Logger
}

func NewSiteLock(client *Client, logger *zap.Logger) *SiteLock {
	return &SiteLock{client: client, logger: logger}
}

// LockTTL outlives the job deadline so a crashed holder still frees the site eventually
func LockTTL(jobDeadline time.Duration) time.Duration {
	return max(jobDeadline+lockTTLBuffer, minLockTTL)
}

// Acquire takes the lock for siteID on behalf of jobID. Returns false when another job holds it.
func (l *SiteLock) Acquire(siteID, jobID string, jobDeadline time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockOperationTimeout)
	defer cancel()

	ttl := LockTTL(jobDeadline)
	acquired, err := l.client.SetNX(ctx, l.client.SiteLockKey(siteID), jobID, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire site lock: %w", err)
	}

	l.logger.Debug("Site lock attempt",
		zap.String("site", siteID),
		zap.String("job_id", jobID),
		zap.Bool("acquired", acquired),
		zap.Duration("lock_ttl", ttl))
	return acquired, nil
}

// Holder returns the job currently holding siteID's lock, if any
func (l *SiteLock) Holder(ctx context.Context, siteID string) (string, bool, error) {
	return l.client.Get(ctx, l.client.SiteLockKey(siteID))
}

// Release frees the lock if jobID still holds it
func (l *SiteLock) Release(siteID, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), lockOperationTimeout)
	defer cancel()

	if _, err := l.client.Eval(ctx, releaseScript, []string{l.client.SiteLockKey(siteID)}, jobID); err != nil {
		l.logger.Error("Failed to release site lock",
			zap.String("site", siteID),
			zap.String("job_id", jobID),
			zap.Error(err))
	}
}
