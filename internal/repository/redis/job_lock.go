package redis

import (
	"context"
	"time"

	redisclient "oidworker/internal/adapters/redis"
	"oidworker/internal/domain/jobrun"
)

const jobLockPrefix = "oidworker:job:"

// JobLock is a cross-replica run lock keyed by job name.
// The TTL bounds how long a crashed holder can block other replicas.
type JobLock struct {
	client *redisclient.Client
	ttl    time.Duration
}

// NewJobLock creates a job lock. A non-positive ttl defaults to 15 minutes.
func NewJobLock(client *redisclient.Client, ttl time.Duration) *JobLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JobLock{client: client, ttl: ttl}
}

// Acquire takes the lock for job; false means another owner holds it
func (l *JobLock) Acquire(ctx context.Context, job jobrun.JobName, owner string) (bool, error) {
	return l.client.AcquireLock(ctx, jobLockPrefix+string(job), owner, l.ttl)
}

// Release drops the lock if owner still holds it
func (l *JobLock) Release(ctx context.Context, job jobrun.JobName, owner string) error {
	return l.client.ReleaseLock(ctx, jobLockPrefix+string(job), owner)
}
