package ctdf

import (
	"time"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Body      interface{}
}

type EventType string

const (
	EventTypeDepartureSnapshotRefreshed EventType = "DepartureSnapshotRefreshed"
)

func NewSnapshotRefreshedEvent(snapshot *Snapshot) Event {
	return Event{
		Type:      EventTypeDepartureSnapshotRefreshed,
		Timestamp: snapshot.CapturedAt,
		Body:      snapshot,
	}
}
