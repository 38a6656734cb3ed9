package dataimporter

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/railwatch/railwatch/pkg/database"
	"github.com/railwatch/railwatch/pkg/util"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "data-importer",
		Usage: "Import timetable extracts into the schedule store",
		Subcommands: []*cli.Command{
			{
				Name:  "file",
				Usage: "import a single timetable extract",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "path",
						Usage:    "Path of the extract file",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						log.Fatal().Err(err).Msg("Failed to connect to database")
					}

					env := util.GetEnvironmentVariables()
					importer := newImporter(env["RAILWATCH_AREAS_CONFIG"])

					return importFile(importer, c.String("path"))
				},
			},
			{
				Name:  "watch",
				Usage: "periodically scan a directory for new extracts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "directory",
						Usage:    "Directory the extract files arrive in",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						log.Fatal().Err(err).Msg("Failed to connect to database")
					}

					env := util.GetEnvironmentVariables()

					stop := make(chan struct{})
					go func() {
						signals := make(chan os.Signal, 1)
						signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
						<-signals
						close(stop)
					}()

					watchDirectory(c.String("directory"), env["RAILWATCH_AREAS_CONFIG"], stop)

					return nil
				},
			},
		},
	}
}
