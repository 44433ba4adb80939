package main

import (
	"os"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/api"
	"github.com/awphi/esp32-cambridge-transit/pkg/events"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	if os.Getenv("TRANSIT_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("TRANSIT_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "transit",
		Description: "Departure board aggregator for a single bus stop and railway station",

		Commands: []*cli.Command{
			api.RegisterCLI(),
			events.RegisterCLI(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
