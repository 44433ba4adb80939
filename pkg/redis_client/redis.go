package redis_client

import (
	"context"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var Client *redis.Client
var QueueConnection rmq.Connection

const connectTimeout = 30 * time.Second

type Options struct {
	Address  string
	Password string
	Database int
}

// Connect opens the Redis client and the queue connection on top of it,
// retrying the initial ping with exponential backoff.
func Connect(options Options) error {
	if options.Password == "" {
		Client = redis.NewClient(&redis.Options{
			Addr: options.Address,
			DB:   options.Database,
		})
	} else {
		Client = redis.NewClient(&redis.Options{
			Addr:     options.Address,
			Password: options.Password,
			DB:       options.Database,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.MaxElapsedTime = connectTimeout

	err := backoff.Retry(func() error {
		err := Client.Ping(ctx).Err()
		if err != nil {
			log.Warn().Err(err).Str("address", options.Address).Msg("Redis not ready, retrying")
		}
		return err
	}, backoff.WithContext(retryBackoff, ctx))
	if err != nil {
		return err
	}

	QueueConnection, err = rmq.OpenConnectionWithRedisClient("transit", Client, nil)
	if err != nil {
		return err
	}

	log.Info().Str("address", options.Address).Int("database", options.Database).Msg("Connected to Redis")

	return nil
}
