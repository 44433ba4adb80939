package api

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/config"
	"github.com/kr/pretty"
	"github.com/urfave/cli/v2"
)

const fetchTimeout = 30 * time.Second

func RegisterCLI() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:  "config",
		Usage: "path to a YAML config file",
	}

	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the departures web API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen target for the web server",
					},
					configFlag,
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					listen := cfg.Listen
					if c.IsSet("listen") {
						listen = c.String("listen")
					}

					cache, err := NewCache(cfg)
					if err != nil {
						return err
					}
					defer cache.Close()

					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()

					go func() {
						<-ctx.Done()
						cache.Close()
					}()

					return SetupServer(ctx, listen, cache)
				},
			},
			{
				Name:  "fetch",
				Usage: "run a single aggregation and print the snapshot",
				Flags: []cli.Flag{
					configFlag,
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					ctx, cancel := context.WithTimeout(c.Context, fetchTimeout)
					defer cancel()

					snapshot, err := NewAggregator(cfg).Aggregate(ctx)
					if err != nil {
						return err
					}

					pretty.Println(snapshot)

					return nil
				},
			},
		},
	}
}
