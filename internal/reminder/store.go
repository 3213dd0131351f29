package reminder

import "context"

// JobStore persists reminder jobs across restarts. Upsert must replace a
// pending job with the same key and leave sent jobs untouched. Claim must
// move exactly one pending job to sending, so concurrent deliveries of the
// same job resolve to a single send.
type JobStore interface {
	Upsert(ctx context.Context, job Job) error
	Find(ctx context.Context, key string) (Job, bool, error)
	Claim(ctx context.Context, key string) (bool, error)
	ListPending(ctx context.Context) ([]Job, error)
	MarkSent(ctx context.Context, key string) error
	MarkFailed(ctx context.Context, key, reason string) error
}
