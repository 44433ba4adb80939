package events

import (
	"fmt"
	"io"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
)

const (
	batchSize    = 20
	batchTimeout = 2 * time.Second
)

func StartConsumer(connection rmq.Connection, out io.Writer) error {
	log.Info().Str("queue", QueueName).Msg("Starting events consumer")

	queue, err := connection.OpenQueue(QueueName)
	if err != nil {
		return err
	}
	if err := queue.StartConsuming(batchSize, 1*time.Second); err != nil {
		return err
	}

	if _, err := queue.AddBatchConsumer("transit-events-tail", batchSize, batchTimeout, NewBatchConsumer(out)); err != nil {
		return err
	}

	return nil
}

type BatchConsumer struct {
	out io.Writer
}

func NewBatchConsumer(out io.Writer) *BatchConsumer {
	return &BatchConsumer{out: out}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	for _, payload := range batch.Payloads() {
		event, err := decodeEvent([]byte(payload))
		if err != nil {
			log.Error().Err(err).Msg("Failed to decode event")
			continue
		}

		fmt.Fprintf(consumer.out, "%# v\n", pretty.Formatter(event))
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack event")
		}
	}
}
