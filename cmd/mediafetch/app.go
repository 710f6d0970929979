package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"mediafetch/internal/config"
)

var version = "dev"

// App is the root command.
func App() *cli.Command {
	return &cli.Command{
		Name:    "mediafetch",
		Version: version,
		Usage:   "Fetch audio or video from a streaming platform and hand it back as a file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("MF_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides logging.level",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			// A missing .env is normal; variables may be set directly.
			if err := godotenv.Load(); err == nil {
				log.Debug().Msg("loaded .env")
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			fetchCmd(),
		},
	}
}

// loadConfig reads the config and applies root flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}
