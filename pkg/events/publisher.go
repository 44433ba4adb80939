package events

import (
	"encoding/json"

	"github.com/adjust/rmq/v5"
	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/rs/zerolog/log"
)

const QueueName = "transit-events"

// Publisher pushes refresh events onto the events queue for any listeners.
// Failures are logged and never reach the caller.
type Publisher struct {
	queue rmq.Queue
}

func NewPublisher(connection rmq.Connection) (*Publisher, error) {
	queue, err := connection.OpenQueue(QueueName)
	if err != nil {
		return nil, err
	}

	return &Publisher{queue: queue}, nil
}

func (p *Publisher) PublishSnapshotRefreshed(snapshot *ctdf.Snapshot) {
	event := ctdf.NewSnapshotRefreshedEvent(snapshot)

	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode event")
		return
	}

	if err := p.queue.PublishBytes(eventBytes); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to publish event")
		return
	}

	log.Debug().Str("type", string(event.Type)).Msg("Published event")
}
