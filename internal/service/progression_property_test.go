package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"

	"telco-rewards/internal/pkg/lock"
	"telco-rewards/internal/repository"
)

type ledgerOp struct {
	redeem bool
	amount int64
}

// TestConcurrentEventsNoLostUpdateProperty runs a random mix of completions
// and redemptions against one user from several goroutines. Every event that
// reports success must be reflected in the final balance exactly once, and
// the balance never goes negative.
func TestConcurrentEventsNoLostUpdateProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		env := newTestEnv(t)
		env.seedUser(t, "u1", 100)

		workers := rapid.IntRange(2, 6).Draw(rt, "workers")
		perWorker := rapid.IntRange(1, 8).Draw(rt, "perWorker")

		redeems := 0
		plan := make([][]ledgerOp, workers)
		for w := range plan {
			plan[w] = make([]ledgerOp, perWorker)
			for i := range plan[w] {
				plan[w][i] = ledgerOp{
					redeem: rapid.Bool().Draw(rt, "redeem"),
					amount: rapid.Int64Range(1, 80).Draw(rt, "amount"),
				}
				if plan[w][i].redeem {
					redeems++
				}
			}
		}

		var credited, debited atomic.Int64
		var wg sync.WaitGroup
		for w := range plan {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i, o := range plan[w] {
					if o.redeem {
						if _, err := env.progression.RedeemPerk(ctx, "u1", "perk", "Perk", o.amount); err == nil {
							debited.Add(o.amount)
						}
						continue
					}
					id := fmt.Sprintf("act-%d-%d", w, i)
					if _, err := env.progression.CompleteActivity(ctx, "u1", id, o.amount, o.amount); err == nil {
						credited.Add(o.amount)
					}
				}
			}(w)
		}
		wg.Wait()

		u, err := env.profile.Profile(ctx, "u1")
		if err != nil {
			rt.Fatalf("failed to load user: %v", err)
		}
		if u.Tokens < 0 {
			rt.Fatalf("balance went negative: %d", u.Tokens)
		}
		if want := 100 + credited.Load() - debited.Load(); u.Tokens != want {
			rt.Fatalf("tokens=%d, want %d (credited %d, debited %d)", u.Tokens, want, credited.Load(), debited.Load())
		}
		if u.XP != credited.Load() {
			rt.Fatalf("xp=%d, want %d", u.XP, credited.Load())
		}
		if want := workers*perWorker - redeems; len(u.CompletedActivities) != want {
			rt.Fatalf("completed %d activities, want %d", len(u.CompletedActivities), want)
		}
	})
}

// TestRetryBoundProperty checks that an event facing constant version
// conflicts is attempted exactly maxRetries+1 times.
func TestRetryBoundProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		env := newTestEnv(t)
		env.seedUser(t, "u1", 100)

		retries := rapid.IntRange(0, 10).Draw(rt, "retries")
		store := &flakyStore{UserStore: env.stores.Users, applyErr: repository.ErrVersionConflict}
		p := NewProgressionService(store, lock.NewUserLock(), WithMaxRetries(retries))

		_, err := p.CompleteActivity(context.Background(), "u1", "quiz-1", 1, 1)
		if !errors.Is(err, ErrConcurrentUpdate) {
			rt.Fatalf("expected ErrConcurrentUpdate, got %v", err)
		}
		if store.calls != retries+1 {
			rt.Fatalf("attempts=%d, want %d", store.calls, retries+1)
		}
	})
}
