package refreshcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTTL = 30 * time.Second

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// countingAggregator builds snapshots whose feed titles carry the cycle number.
type countingAggregator struct {
	clock *fakeClock
	calls atomic.Int32

	started chan struct{}
	gate    chan struct{}
	err     error
}

func newCountingAggregator(clock *fakeClock) *countingAggregator {
	return &countingAggregator{
		clock:   clock,
		started: make(chan struct{}, 100),
	}
}

func (a *countingAggregator) Aggregate(ctx context.Context) (*ctdf.Snapshot, error) {
	cycle := a.calls.Add(1)
	a.started <- struct{}{}

	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if a.err != nil {
		return nil, a.err
	}

	return ctdf.NewSnapshot(
		a.clock.Now(),
		ctdf.NewFeed(fmt.Sprintf("Buses - cycle %d", cycle)),
		ctdf.NewFeed(fmt.Sprintf("Trains - cycle %d", cycle)),
	), nil
}

func TestGetEmptyCacheAggregates(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)
	cache := New(aggregator, testTTL, WithClock(clock.Now))

	assert.Nil(t, cache.Snapshot())

	snapshot, err := cache.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), aggregator.calls.Load())
	assert.Equal(t, "Buses - cycle 1", snapshot.BusFeed.Title)
	assert.Same(t, snapshot, cache.Snapshot())
}

func TestGetFreshnessBoundary(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)
	cache := New(aggregator, testTTL, WithClock(clock.Now))

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(testTTL - time.Millisecond)
	snapshot, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, snapshot)
	assert.Equal(t, int32(1), aggregator.calls.Load())

	clock.Advance(2 * time.Millisecond)
	snapshot, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, snapshot)
	assert.Equal(t, int32(2), aggregator.calls.Load())
	assert.Equal(t, "Trains - cycle 2", snapshot.RailFeed.Title)
}

func TestGetSingleFlight(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)
	aggregator.gate = make(chan struct{})
	cache := New(aggregator, testTTL, WithClock(clock.Now))

	const readers = 50

	results := make(chan *ctdf.Snapshot, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot, err := cache.Get(context.Background())
			assert.NoError(t, err)
			results <- snapshot
		}()
	}

	<-aggregator.started
	// Give the remaining readers time to join the in-flight refresh
	time.Sleep(50 * time.Millisecond)
	close(aggregator.gate)

	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), aggregator.calls.Load())

	var capturedAt []time.Time
	for snapshot := range results {
		require.NotNil(t, snapshot)
		capturedAt = append(capturedAt, snapshot.CapturedAt)
	}
	require.Len(t, capturedAt, readers)
	for _, c := range capturedAt {
		assert.Equal(t, capturedAt[0], c)
	}
}

func TestGetSingleFlightWhenStale(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)
	cache := New(aggregator, testTTL, WithClock(clock.Now))

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(testTTL)
	aggregator.gate = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot, err := cache.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "Buses - cycle 2", snapshot.BusFeed.Title)
		}()
	}

	<-aggregator.started
	<-aggregator.started
	time.Sleep(50 * time.Millisecond)
	close(aggregator.gate)
	wg.Wait()

	assert.Equal(t, int32(2), aggregator.calls.Load())
}

func TestGetSnapshotAtomicity(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)
	cache := New(aggregator, time.Millisecond, WithClock(clock.Now))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last time.Time
			for ctx.Err() == nil {
				clock.Advance(time.Millisecond)

				snapshot, err := cache.Get(context.Background())
				if !assert.NoError(t, err) {
					return
				}

				busCycle := snapshot.BusFeed.Title[len("Buses - "):]
				railCycle := snapshot.RailFeed.Title[len("Trains - "):]
				assert.Equal(t, busCycle, railCycle)
				assert.False(t, snapshot.CapturedAt.Before(last), "snapshot regressed")
				last = snapshot.CapturedAt
			}
		}()
	}
	wg.Wait()

	assert.Greater(t, aggregator.calls.Load(), int32(1))
}

func TestGetDoesNotRegress(t *testing.T) {
	clock := newFakeClock()
	older := ctdf.NewSnapshot(clock.Now().Add(-time.Minute), ctdf.NewFeed("Buses - old"), ctdf.NewFeed("Trains - old"))
	newer := ctdf.NewSnapshot(clock.Now(), ctdf.NewFeed("Buses - new"), ctdf.NewFeed("Trains - new"))

	responses := []*ctdf.Snapshot{newer, older}
	var calls atomic.Int32
	aggregator := aggregatorFunc(func(ctx context.Context) (*ctdf.Snapshot, error) {
		return responses[calls.Add(1)-1], nil
	})

	cache := New(aggregator, testTTL, WithClock(clock.Now))

	snapshot, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, newer, snapshot)

	clock.Advance(testTTL)
	snapshot, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, newer, snapshot)
	assert.Same(t, newer, cache.Snapshot())
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetAggregationErrorKeepsSnapshot(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)
	cache := New(aggregator, testTTL, WithClock(clock.Now))

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(testTTL)
	aggregator.err = errors.New("aggregation exploded")

	_, err = cache.Get(context.Background())
	assert.EqualError(t, err, "aggregation exploded")
	assert.Same(t, first, cache.Snapshot())
}

func TestCloseFailsWaiters(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)
	aggregator.gate = make(chan struct{})
	cache := New(aggregator, testTTL, WithClock(clock.Now))

	const readers = 5
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		go func() {
			_, err := cache.Get(context.Background())
			errs <- err
		}()
	}

	<-aggregator.started
	cache.Close()

	for i := 0; i < readers; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter did not return after Close")
		}
	}

	assert.Nil(t, cache.Snapshot())

	_, err := cache.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseServesFreshSnapshot(t *testing.T) {
	clock := newFakeClock()
	cache := New(newCountingAggregator(clock), testTTL, WithClock(clock.Now))

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	cache.Close()

	snapshot, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, snapshot)

	clock.Advance(testTTL)
	_, err = cache.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseDiscardsLateSnapshot(t *testing.T) {
	clock := newFakeClock()
	release := make(chan struct{})
	started := make(chan struct{})

	// Ignores cancellation and finishes after Close
	aggregator := aggregatorFunc(func(ctx context.Context) (*ctdf.Snapshot, error) {
		close(started)
		<-release
		return ctdf.NewSnapshot(clock.Now(), ctdf.NewFeed("Buses"), ctdf.NewFeed("Trains")), nil
	})
	cache := New(aggregator, testTTL, WithClock(clock.Now))

	errs := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background())
		errs <- err
	}()

	<-started
	cache.Close()
	assert.ErrorIs(t, <-errs, ErrClosed)

	close(release)
	// Joins the abandoned refresh and returns once it has finished
	cache.group.Do(refreshKey, func() (interface{}, error) { return nil, nil })
	assert.Nil(t, cache.Snapshot())
}

func TestGetWaiterContextCancelled(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)
	aggregator.gate = make(chan struct{})
	cache := New(aggregator, testTTL, WithClock(clock.Now))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(aggregator.gate)

	snapshot, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Buses - cycle 1", snapshot.BusFeed.Title)
	assert.Equal(t, int32(1), aggregator.calls.Load())
}

func TestRefreshHooks(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)

	hooked := make(chan *ctdf.Snapshot, 10)
	cache := New(aggregator, testTTL, WithClock(clock.Now), WithRefreshHook(func(snapshot *ctdf.Snapshot) {
		hooked <- snapshot
	}))

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	_, err = cache.Get(context.Background())
	require.NoError(t, err)

	select {
	case snapshot := <-hooked:
		assert.Same(t, first, snapshot)
	case <-time.After(time.Second):
		t.Fatal("refresh hook was not called")
	}
	assert.Empty(t, hooked)
}

func TestRefreshHookDoesNotBlockReaders(t *testing.T) {
	clock := newFakeClock()
	aggregator := newCountingAggregator(clock)

	release := make(chan struct{})
	done := make(chan struct{})
	cache := New(aggregator, testTTL, WithClock(clock.Now), WithRefreshHook(func(snapshot *ctdf.Snapshot) {
		<-release
		close(done)
	}))

	snapshot, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Buses - cycle 1", snapshot.BusFeed.Title)

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh hook did not finish")
	}
}

type aggregatorFunc func(ctx context.Context) (*ctdf.Snapshot, error)

func (f aggregatorFunc) Aggregate(ctx context.Context) (*ctdf.Snapshot, error) {
	return f(ctx)
}
