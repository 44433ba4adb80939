package busstop

import (
	"context"
	"net/http"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source"
)

const DefaultEndpoint = "https://www.cambridgeshirebus.info/Popup_Content/WebDisplay/WebDisplay.aspx"

const titlePrefix = "Buses"

// Source scrapes the real time information widget for a single bus stop.
type Source struct {
	StopRef  string
	Endpoint string

	Client *http.Client
}

func (s Source) GetName() string {
	return "Cambridgeshire Bus Stop Display"
}

func (s Source) DepartureFeed(ctx context.Context) ctdf.Feed {
	return source.FeedOrFailure(ctx, s.GetName(), titlePrefix, s.DepartureBoardQuery)
}
