package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	app := &cli.App{
		Name:    "payind",
		Usage:   "PayIn settlement engine",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a yaml config file",
				EnvVars: []string{"PAYIN_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			cmdMigrate,
			cmdServe,
			cmdPoll,
			cmdDescribe,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("payind")
	}
}
