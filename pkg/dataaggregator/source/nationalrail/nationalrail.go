package nationalrail

import (
	"context"
	"net/http"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source"
)

const DefaultEndpoint = "https://api1.raildata.org.uk/1010-live-departure-board-dep1_2/LDBWS/api/20220120/GetDepartureBoard"

const titlePrefix = "Trains"

// Source queries the Live Departure Board Web Service JSON gateway.
type Source struct {
	Query    string
	APIKey   string
	Endpoint string

	Client *http.Client
}

func (s Source) GetName() string {
	return "GB National Rail"
}

func (s Source) DepartureFeed(ctx context.Context) ctdf.Feed {
	return source.FeedOrFailure(ctx, s.GetName(), titlePrefix, s.DepartureBoardQuery)
}
