package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
)

type snapshotEvent struct {
	Type      ctdf.EventType
	Timestamp time.Time
	Body      *ctdf.Snapshot
}

func decodeEvent(payload []byte) (*snapshotEvent, error) {
	var event snapshotEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	if event.Type != ctdf.EventTypeDepartureSnapshotRefreshed {
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}

	return &event, nil
}
