package nationalrail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source"
	"golang.org/x/exp/slices"
)

const onTime = "On time"

const secondsPerDay = 24 * 60 * 60

func (s Source) DepartureBoardQuery(ctx context.Context) (ctdf.Feed, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	requestURL := fmt.Sprintf("%s/%s", strings.TrimSuffix(endpoint, "/"), s.Query)

	body, _, err := source.Get(ctx, client, requestURL, map[string]string{
		"x-apikey": s.APIKey,
		// The gateway rejects some default agents, an empty value omits the header
		"User-Agent": "",
	})
	if err != nil {
		return ctdf.Feed{}, err
	}

	var departureBoard departureBoardResponse
	if err := json.Unmarshal(body, &departureBoard); err != nil {
		return ctdf.Feed{}, &source.ParseError{Err: err}
	}

	return departureBoard.toFeed()
}

func (r departureBoardResponse) toFeed() (ctdf.Feed, error) {
	var services []timedService

	for _, serviceList := range [][]departureBoardService{r.TrainServices, r.BusServices} {
		for _, service := range serviceList {
			secondOfDay, err := scheduledSecondOfDay(service.Scheduled)
			if err != nil {
				return ctdf.Feed{}, &source.ParseError{Err: err}
			}

			services = append(services, timedService{
				departureBoardService: service,
				secondOfDay:           secondOfDay,
			})
		}
	}

	slices.SortStableFunc(services, func(a, b timedService) int {
		return a.secondOfDay - b.secondOfDay
	})
	services = startAfterLargestGap(services)

	stationName := r.LocationName
	if stationName == "" {
		stationName = "Unknown Station"
	}

	feed := ctdf.NewFeed(fmt.Sprintf("%s - %s", titlePrefix, stationName))

	for _, service := range services {
		feed.AddDeparture(service.eta(), ctdf.ServiceTypeCode(service.ServiceType), service.destinationName())
	}

	return feed, nil
}

// scheduledSecondOfDay parses an HH:MM (or HH:MM:SS) board time.
func scheduledSecondOfDay(scheduled string) (int, error) {
	if scheduled == "" {
		return 0, fmt.Errorf("service has no scheduled departure time")
	}

	timeOnly, err := time.Parse("15:04", scheduled)
	if err != nil {
		timeOnly, err = time.Parse("15:04:05", scheduled)
		if err != nil {
			return 0, fmt.Errorf("invalid scheduled departure time %q: %w", scheduled, err)
		}
	}

	return timeOnly.Hour()*3600 + timeOnly.Minute()*60 + timeOnly.Second(), nil
}

// startAfterLargestGap takes services sorted by time of day and rotates them
// so the board starts after the widest gap on the 24 hour clock. A board only
// covers a short window, so when it spans midnight the widest gap is the one
// outside that window. Boards that do not wrap are returned unchanged.
func startAfterLargestGap(services []timedService) []timedService {
	if len(services) < 2 {
		return services
	}

	start := 0
	largestGap := services[0].secondOfDay + secondsPerDay - services[len(services)-1].secondOfDay

	for i := 1; i < len(services); i++ {
		if gap := services[i].secondOfDay - services[i-1].secondOfDay; gap > largestGap {
			largestGap = gap
			start = i
		}
	}

	rotated := make([]timedService, 0, len(services))
	rotated = append(rotated, services[start:]...)
	rotated = append(rotated, services[:start]...)

	return rotated
}

type departureBoardResponse struct {
	GeneratedAt  string `json:"generatedAt"`
	LocationName string `json:"locationName"`
	Crs          string `json:"crs"`

	TrainServices []departureBoardService `json:"trainServices"`
	BusServices   []departureBoardService `json:"busServices"`
}

type departureBoardService struct {
	ServiceID string `json:"serviceID"`

	Scheduled string `json:"std"`
	Estimated string `json:"etd"`

	ServiceType  string `json:"serviceType"`
	Operator     string `json:"operator"`
	OperatorCode string `json:"operatorCode"`
	Platform     string `json:"platform"`

	Origin      []departureBoardLocation `json:"origin"`
	Destination []departureBoardLocation `json:"destination"`
}

type departureBoardLocation struct {
	Name string `json:"locationName"`
	Crs  string `json:"crs"`
	Via  string `json:"via"`
}

type timedService struct {
	departureBoardService
	secondOfDay int
}

func (s departureBoardService) eta() string {
	if s.Estimated == "" || s.Estimated == onTime {
		return s.Scheduled
	}

	return fmt.Sprintf("%s (%s)", s.Scheduled, s.Estimated)
}

func (s departureBoardService) destinationName() string {
	if len(s.Destination) == 0 {
		return "Unknown"
	}

	name := s.Destination[len(s.Destination)-1].Name
	if name == "" {
		return "Unknown"
	}

	return name
}
