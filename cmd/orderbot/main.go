package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/m3rciful/orderbot/core/buildinfo"
	"github.com/m3rciful/orderbot/core/cmd"
	"github.com/m3rciful/orderbot/core/config"
)

func main() {
	app := &cli.App{
		Name:    "orderbot",
		Usage:   "chat ordering bot for the shop catalog",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config",
				EnvVars: []string{"CONFIG_PATH"},
				Value:   "config.yaml",
			},
		},
		Action: func(c *cli.Context) error {
			return cmd.Run(c.Context, cmd.Options{ConfigPath: c.String("config")})
		},
		Commands: []*cli.Command{
			{
				Name:  "check-config",
				Usage: "load the config and print missing credentials",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					for _, w := range config.Warnings(cfg) {
						log.Printf("warning: %s", w)
					}
					log.Printf("config ok: channel=%s store=%s payment=%s archive=%s",
						cfg.Messaging.Channel, cfg.Store.Driver, cfg.Payment.Provider, cfg.Archive.Driver)
					return nil
				},
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
