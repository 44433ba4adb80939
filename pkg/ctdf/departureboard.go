package ctdf

import (
	"fmt"
	"time"
)

type DepartureRow struct {
	ETA         string `json:"eta" groups:"basic,detailed"`
	Service     string `json:"service" groups:"basic,detailed"`
	Destination string `json:"dest" groups:"basic,detailed"`
}

// Feed is one source's view of its departure board. A Feed with no
// departures is valid, Degraded marks feeds produced from an upstream failure.
type Feed struct {
	Title      string         `json:"title" groups:"basic,detailed"`
	Departures []DepartureRow `json:"departures" groups:"basic,detailed"`

	Degraded bool `json:"degraded" groups:"detailed"`
}

func NewFeed(title string) Feed {
	return Feed{
		Title:      title,
		Departures: []DepartureRow{},
	}
}

func NewFailureFeed(prefix string, reason string) Feed {
	return Feed{
		Title:      fmt.Sprintf("%s - %s", prefix, reason),
		Departures: []DepartureRow{},
		Degraded:   true,
	}
}

func (f *Feed) AddDeparture(eta string, service string, destination string) {
	f.Departures = append(f.Departures, DepartureRow{
		ETA:         eta,
		Service:     service,
		Destination: destination,
	})
}

// Snapshot is the merged result of one aggregation cycle. Both feeds were
// fetched in the same cycle and share CapturedAt.
type Snapshot struct {
	Time       int64     `json:"time" groups:"basic,detailed"`
	CapturedAt time.Time `json:"captured_at" groups:"detailed"`

	BusFeed  Feed `json:"bus_info" groups:"basic,detailed"`
	RailFeed Feed `json:"train_info" groups:"basic,detailed"`
}

func NewSnapshot(capturedAt time.Time, busFeed Feed, railFeed Feed) *Snapshot {
	if busFeed.Departures == nil {
		busFeed.Departures = []DepartureRow{}
	}
	if railFeed.Departures == nil {
		railFeed.Departures = []DepartureRow{}
	}

	return &Snapshot{
		Time:       capturedAt.Unix(),
		CapturedAt: capturedAt,
		BusFeed:    busFeed,
		RailFeed:   railFeed,
	}
}

func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

func (s *Snapshot) FreshAt(now time.Time, ttl time.Duration) bool {
	return s.Age(now) < ttl
}

// NewerThan reports whether s was captured after other. A nil other is always older.
func (s *Snapshot) NewerThan(other *Snapshot) bool {
	if other == nil {
		return true
	}

	return s.CapturedAt.After(other.CapturedAt)
}
