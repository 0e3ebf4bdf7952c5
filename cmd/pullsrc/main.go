package main

import (
	"os"

	"github.com/jaywantadh/pullsrc/config"
	"github.com/jaywantadh/pullsrc/pkg/env"
	"github.com/jaywantadh/pullsrc/pkg/logging"
	"github.com/urfave/cli/v2"
)

func main() {
	logging.InitLogger(false)

	app := &cli.App{
		Name:  "pullsrc",
		Usage: "Serve a local file to a remote puller over a websocket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "./config", Usage: "directory holding config.yaml"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before the config"},
			&cli.BoolFlag{Name: "debug", Usage: "verbose text logging"},
		},
		Before: func(c *cli.Context) error {
			if !env.LoadEnv(c.String("env-file")) {
				logging.Log.Debugf("No %s file found, using system envs", c.String("env-file"))
			}
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			logging.InitLogger(cfg.Debug || c.Bool("debug"))
			return nil
		},
		Commands: []*cli.Command{
			sendCommand(),
			stageCommand(),
			listCommand(),
			unstageCommand(),
			historyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}
