package dataaggregator

import (
	"context"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
)

// DataSource produces one departure feed per call. Upstream failures are
// reported inside the returned feed, never as an error.
type DataSource interface {
	GetName() string
	DepartureFeed(ctx context.Context) ctdf.Feed
}
