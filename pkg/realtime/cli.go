package realtime

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/railwatch/railwatch/pkg/activetrains"
	"github.com/railwatch/railwatch/pkg/api"
	"github.com/railwatch/railwatch/pkg/database"
	"github.com/railwatch/railwatch/pkg/redis_client"
	"github.com/railwatch/railwatch/pkg/timetable"
	"github.com/railwatch/railwatch/pkg/util"
)

const registryRefreshInterval = 30 * time.Minute

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "realtime",
		Usage: "Track running trains against the live feeds",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the feed clients, consumers, registry lifecycle and query API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the query API",
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						log.Fatal().Err(err).Msg("Failed to connect to database")
					}
					if err := redis_client.Connect(); err != nil {
						log.Fatal().Err(err).Msg("Failed to connect to redis")
					}

					env := util.GetEnvironmentVariables()

					manager := activetrains.NewManager(
						activetrains.NewStoreSource(timetable.NewStore()),
						loadLateDwellConfig(env["RAILWATCH_LATEDWELL_CONFIG"]),
					)

					if err := manager.LoadToday(); err != nil {
						// Keep running, the lifecycle retries on its
						// next cycle.
						log.Error().Err(err).Msg("Initial registry load failed")
					}

					berths := NewBerthCache()
					correlator := activetrains.NewCorrelator(manager, berths)

					StartConsumers(correlator, berths)

					movements := &StompClient{
						Address:   env["RAILWATCH_MOVEMENT_FEED_ADDRESS"],
						Username:  env["RAILWATCH_MOVEMENT_FEED_USERNAME"],
						Password:  env["RAILWATCH_MOVEMENT_FEED_PASSWORD"],
						Topic:     env["RAILWATCH_MOVEMENT_FEED_TOPIC"],
						QueueName: MovementQueueName,
					}
					go movements.Run()

					forecasts := &StompClient{
						Address:   env["RAILWATCH_FORECAST_FEED_ADDRESS"],
						Username:  env["RAILWATCH_FORECAST_FEED_USERNAME"],
						Password:  env["RAILWATCH_FORECAST_FEED_PASSWORD"],
						Topic:     env["RAILWATCH_FORECAST_FEED_TOPIC"],
						QueueName: ForecastQueueName,
					}
					go forecasts.Run()

					go func() {
						if err := api.SetupServer(c.String("listen"), manager); err != nil {
							log.Fatal().Err(err).Msg("Query API server failed")
						}
					}()

					stop := make(chan struct{})
					go func() {
						signals := make(chan os.Signal, 1)
						signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
						<-signals
						close(stop)
					}()

					manager.RunLifecycle(stop, registryRefreshInterval)

					return nil
				},
			},
		},
	}
}

// loadLateDwellConfig reads the per-location dwell floor overrides.
// Missing config just means the default floor everywhere.
func loadLateDwellConfig(path string) activetrains.LateDwellConfig {
	var config activetrains.LateDwellConfig
	if path == "" {
		return config
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read late dwell config")

		return config
	}

	if err := yaml.Unmarshal(contents, &config); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to parse late dwell config")
	}

	return config
}
