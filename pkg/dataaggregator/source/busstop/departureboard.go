package busstop

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source"
	"golang.org/x/net/html/charset"
)

func (s Source) DepartureBoardQuery(ctx context.Context) (ctdf.Feed, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	requestURL := fmt.Sprintf("%s?stopRef=%s", endpoint, url.QueryEscape(s.StopRef))

	body, header, err := source.Get(ctx, client, requestURL, map[string]string{
		"User-Agent": "curl/7.54.1",
	})
	if err != nil {
		return ctdf.Feed{}, err
	}

	return parseDepartureBoard(body, header.Get("Content-Type"))
}

func parseDepartureBoard(body []byte, contentType string) (ctdf.Feed, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return ctdf.Feed{}, &source.ParseError{Err: err}
	}

	document, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return ctdf.Feed{}, &source.ParseError{Err: err}
	}

	table := document.Find(".rtiTable").First()
	if table.Length() == 0 {
		return ctdf.Feed{}, source.NewParseError("departures table .rtiTable not found")
	}

	stopTitle := document.Find("#stopTitle").First()
	if stopTitle.Length() == 0 {
		return ctdf.Feed{}, source.NewParseError("stop title #stopTitle not found")
	}

	// The widget title reads "<stop name> - <timestamp>"
	stationName := strings.TrimSpace(strings.SplitN(stopTitle.Text(), "-", 2)[0])

	feed := ctdf.NewFeed(fmt.Sprintf("%s - %s", titlePrefix, stationName))

	var rowErr error
	table.Find(".gridRow").EachWithBreak(func(i int, row *goquery.Selection) bool {
		service, err := requiredText(row, ".gridServiceItem")
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i, err)
			return false
		}
		destination, err := requiredText(row, ".gridDestinationItem")
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i, err)
			return false
		}
		eta, err := requiredText(row, ".gridTimeItem")
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i, err)
			return false
		}

		feed.AddDeparture(eta, service, destination)

		return true
	})
	if rowErr != nil {
		return ctdf.Feed{}, &source.ParseError{Err: rowErr}
	}

	return feed, nil
}

func requiredText(selection *goquery.Selection, selector string) (string, error) {
	match := selection.Find(selector).First()
	if match.Length() == 0 {
		return "", fmt.Errorf("%s not found", selector)
	}

	return strings.TrimSpace(match.Text()), nil
}
