package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	list []*strategies.Strategy
	err  error
}

func (f *fakeLister) ListEnabled() ([]*strategies.Strategy, error) {
	return f.list, f.err
}

func testScheduler(runs RunFunc) *Scheduler {
	return New(runs, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestRegister_SkipsManualOnlyAndBadSchedules(t *testing.T) {
	var calls int64
	sched := testScheduler(func(context.Context, string) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})

	lister := &fakeLister{list: []*strategies.Strategy{
		{ID: "s-cron", Schedule: "0 10 * * 1-5"},
		{ID: "s-manual", Schedule: ""},
		{ID: "s-broken", Schedule: "not a cron expression"},
	}}

	require.NoError(t, sched.Register(context.Background(), lister))
	assert.Len(t, sched.cron.Entries(), 1, "only the valid schedule registers")
}

func TestRegister_PropagatesListerError(t *testing.T) {
	sched := testScheduler(func(context.Context, string) error { return nil })

	err := sched.Register(context.Background(), &fakeLister{err: errors.New("db closed")})
	assert.Error(t, err)
}

func TestTrigger_SuppressesOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int64

	sched := testScheduler(func(context.Context, string) error {
		atomic.AddInt64(&calls, 1)
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.trigger(context.Background(), "s-1")
	}()

	<-started
	// Second fire while the first is still in flight: skipped, not queued.
	sched.trigger(context.Background(), "s-1")
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	close(release)
	wg.Wait()

	// Once the first run finishes, the strategy can fire again.
	started = make(chan struct{})
	release = make(chan struct{})
	close(release)
	sched.trigger(context.Background(), "s-1")
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestTrigger_IndependentStrategiesRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	var calls int64

	sched := testScheduler(func(_ context.Context, id string) error {
		atomic.AddInt64(&calls, 1)
		if id == "s-slow" {
			<-release
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		sched.trigger(context.Background(), "s-slow")
		close(done)
	}()

	// Wait for the slow run to claim its slot.
	for {
		sched.mu.Lock()
		claimed := sched.active["s-slow"]
		sched.mu.Unlock()
		if claimed {
			break
		}
	}

	sched.trigger(context.Background(), "s-fast")
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "a different strategy is not blocked")

	close(release)
	<-done
}

func TestTrigger_RunErrorReleasesSlot(t *testing.T) {
	var calls int64
	sched := testScheduler(func(context.Context, string) error {
		atomic.AddInt64(&calls, 1)
		return errors.New("oracle unreachable")
	})

	sched.trigger(context.Background(), "s-1")
	sched.trigger(context.Background(), "s-1")

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "failed runs must not leave the strategy marked active")
}
