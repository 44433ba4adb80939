package api

import (
	"github.com/awphi/esp32-cambridge-transit/pkg/config"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source/busstop"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source/cachedresults"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source/nationalrail"
	"github.com/awphi/esp32-cambridge-transit/pkg/events"
	"github.com/awphi/esp32-cambridge-transit/pkg/redis_client"
	"github.com/awphi/esp32-cambridge-transit/pkg/refreshcache"
	"github.com/rs/zerolog/log"
)

func NewAggregator(cfg *config.Config) *dataaggregator.Aggregator {
	client := source.NewHTTPClient(cfg.ConnectTimeoutDuration(), cfg.ClientTimeoutDuration())

	return &dataaggregator.Aggregator{
		Bus: busstop.Source{
			StopRef:  cfg.Bus.StopRef,
			Endpoint: cfg.Bus.Endpoint,
			Client:   client,
		},
		Rail: nationalrail.Source{
			Query:    cfg.Rail.Query,
			APIKey:   cfg.Rail.APIKey,
			Endpoint: cfg.Rail.Endpoint,
			Client:   client,
		},
	}
}

// NewCache builds the refresh cache, sharing snapshots and publishing refresh
// events through Redis when an address is configured.
func NewCache(cfg *config.Config) (*refreshcache.Cache, error) {
	var options []refreshcache.Option

	if cfg.Redis.Enabled() {
		if err := redis_client.Connect(cfg.Redis.Options()); err != nil {
			return nil, err
		}

		sharedCache := &cachedresults.Cache{}
		sharedCache.Setup(cfg.CacheTTLDuration())
		options = append(options, refreshcache.WithSharedStore(sharedCache))

		publisher, err := events.NewPublisher(redis_client.QueueConnection)
		if err != nil {
			return nil, err
		}
		options = append(options, refreshcache.WithRefreshHook(publisher.PublishSnapshotRefreshed))
	} else {
		log.Info().Msg("No Redis address configured, running without a shared cache")
	}

	return refreshcache.New(NewAggregator(cfg), cfg.CacheTTLDuration(), options...), nil
}
