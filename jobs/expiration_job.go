package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// JobExpirer cancels open jobs whose expiry has passed
type JobExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// TokenCleaner removes expired and revoked refresh tokens
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// Runner runs the periodic maintenance tasks until its context is cancelled
type Runner struct {
	expirer         JobExpirer
	tokens          TokenCleaner
	expireInterval  time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	wg              sync.WaitGroup
}

func NewRunner(expirer JobExpirer, tokens TokenCleaner, expireInterval, cleanupInterval time.Duration) *Runner {
	if expireInterval <= 0 {
		expireInterval = time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}
	return &Runner{
		expirer:         expirer,
		tokens:          tokens,
		expireInterval:  expireInterval,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// Start launches the tickers. Wait returns once ctx is done and both have stopped.
func (r *Runner) Start(ctx context.Context) {
	if r.expirer != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.loop(ctx, r.expireInterval, r.expireJobs)
		}()
	}
	if r.tokens != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.loop(ctx, r.cleanupInterval, r.cleanupTokens)
		}()
	}
	log.Printf("🚀 Background jobs started (expiration every %v)", r.expireInterval)
}

func (r *Runner) Wait() {
	r.wg.Wait()
	log.Println("🛑 Background jobs stopped")
}

func (r *Runner) loop(ctx context.Context, every time.Duration, task func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

func (r *Runner) expireJobs(ctx context.Context) {
	n, err := r.expirer.ExpireStale(ctx, r.now())
	if err != nil {
		log.Printf("❌ Error expiring stale jobs: %v", err)
		return
	}
	if n > 0 {
		log.Printf("⏰ Expired %d stale jobs", n)
	}
}

func (r *Runner) cleanupTokens(ctx context.Context) {
	n, err := r.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		log.Printf("❌ Error cleaning up refresh tokens: %v", err)
		return
	}
	if n > 0 {
		log.Printf("⏰ Removed %d expired refresh tokens", n)
	}
}
