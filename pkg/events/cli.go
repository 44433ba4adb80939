package events

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/awphi/esp32-cambridge-transit/pkg/config"
	"github.com/awphi/esp32-cambridge-transit/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect departure refresh events",
		Subcommands: []*cli.Command{
			{
				Name:  "tail",
				Usage: "print refresh events as they are published",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "path to a YAML config file",
					},
				},
				Action: func(c *cli.Context) error {
					redisConfig, err := config.LoadRedis(c.String("config"))
					if err != nil {
						return err
					}
					if err := redis_client.Connect(redisConfig.Options()); err != nil {
						return err
					}

					if err := StartConsumer(redis_client.QueueConnection, os.Stdout); err != nil {
						return err
					}

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					return nil
				},
			},
		},
	}
}
