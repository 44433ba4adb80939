package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/awphi/esp32-cambridge-transit/pkg/metrics"
	"github.com/awphi/esp32-cambridge-transit/pkg/util"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 4 << 20

// UpstreamStatusError is returned when an upstream responds with a non-2xx status.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// ParseError wraps any failure to turn an upstream payload into departures.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing upstream payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func NewParseError(format string, a ...any) error {
	return &ParseError{Err: fmt.Errorf(format, a...)}
}

// NewHTTPClient builds the client shared by the upstream sources. Exceeding
// either timeout surfaces as a network error from Do.
func NewHTTPClient(connectTimeout time.Duration, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Get performs a single GET bound to ctx and returns the body of a 2xx response.
func Get(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	// One byte over the limit tells a full body apart from a truncated one
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &UpstreamStatusError{
			StatusCode: resp.StatusCode,
			Body:       util.TrimString(strings.TrimSpace(string(body)), 200),
		}
	}

	if len(body) > maxResponseBytes {
		return nil, nil, NewParseError("response body exceeds %d bytes", maxResponseBytes)
	}

	return body, resp.Header, nil
}

// FailureReason maps a lookup error to the text shown in a failure feed title
// and the metrics outcome label.
func FailureReason(err error) (string, string) {
	var statusError *UpstreamStatusError
	var parseError *ParseError

	switch {
	case errors.As(err, &statusError):
		return fmt.Sprintf("Error %d", statusError.StatusCode), metrics.OutcomeHTTPError
	case errors.As(err, &parseError):
		return "Parse Error", metrics.OutcomeParseError
	default:
		return "Unavailable", metrics.OutcomeNetworkError
	}
}

// FeedOrFailure runs lookup and converts any error into a degraded feed titled
// with titlePrefix, so callers never see upstream errors.
func FeedOrFailure(ctx context.Context, name string, titlePrefix string, lookup func(context.Context) (ctdf.Feed, error)) ctdf.Feed {
	startTime := time.Now()

	feed, err := lookup(ctx)
	if err != nil {
		reason, outcome := FailureReason(err)
		metrics.ObserveUpstreamFetch(name, outcome, time.Since(startTime))

		logEvent := log.Error()
		if ctx.Err() != nil {
			logEvent = log.Warn()
		}
		logEvent.Err(err).
			Str("source", name).
			Str("outcome", outcome).
			Str("latency", time.Since(startTime).String()).
			Msg("Failed to fetch departures")

		return ctdf.NewFailureFeed(titlePrefix, reason)
	}

	if feed.Departures == nil {
		feed.Departures = []ctdf.DepartureRow{}
	}

	metrics.ObserveUpstreamFetch(name, metrics.OutcomeOK, time.Since(startTime))
	log.Debug().
		Str("source", name).
		Int("departures", len(feed.Departures)).
		Str("latency", time.Since(startTime).String()).
		Msg("Fetched departures")

	return feed
}
