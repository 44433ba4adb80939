package dataaggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Aggregator fetches the bus and rail feeds concurrently and merges them into
// a single Snapshot. Each call is exactly one attempt per source.
type Aggregator struct {
	Bus  DataSource
	Rail DataSource

	Now func() time.Time
}

func (a *Aggregator) Aggregate(ctx context.Context) (*ctdf.Snapshot, error) {
	startTime := time.Now()

	var busFeed, railFeed ctdf.Feed

	var wg conc.WaitGroup
	wg.Go(func() {
		busFeed = lookup(ctx, a.Bus, "Buses")
	})
	wg.Go(func() {
		railFeed = lookup(ctx, a.Rail, "Trains")
	})
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregation cancelled: %w", err)
	}

	snapshot := ctdf.NewSnapshot(a.now(), busFeed, railFeed)

	log.Debug().
		Str("latency", time.Since(startTime).String()).
		Bool("bus_degraded", busFeed.Degraded).
		Bool("rail_degraded", railFeed.Degraded).
		Msg("Aggregated departure snapshot")

	return snapshot, nil
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}

	return time.Now()
}

// lookup isolates a panicking source so the other feed still makes it into the snapshot
func lookup(ctx context.Context, source DataSource, titlePrefix string) ctdf.Feed {
	var feed ctdf.Feed

	var catcher panics.Catcher
	catcher.Try(func() {
		feed = source.DepartureFeed(ctx)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		log.Error().Err(recovered.AsError()).Str("source", source.GetName()).Msg("Data source panicked")

		return ctdf.NewFailureFeed(titlePrefix, "Error")
	}

	return feed
}
