package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amx/internal/cache"
	"github.com/desertthunder/amx/internal/shared"
	"github.com/desertthunder/amx/internal/ui"
)

// Setup creates the config file from the embedded template and initializes
// the match cache database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("config file already exists", "path", configPath)
	} else {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.logger.Info("config file created", "path", configPath)
		r.writePlain("%s\n", ui.OK("✓ Config file created: "+configPath))
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}
	r.config = config
	r.configPath = configPath

	r.logger.Info("initializing match cache", "path", config.Cache.Path)

	db, err := shared.NewDatabase(config.Cache.Path)
	if err != nil {
		return fmt.Errorf("failed to create cache database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Cache.MaxOpenConns, config.Cache.MaxIdleConns)

	if err := cache.NewMatchRepository(db).Init(); err != nil {
		return err
	}

	r.writePlain("%s\n", ui.OK("✓ Match cache ready: "+config.Cache.Path))
	r.writePlain("%s\n", ui.Help("Next: fill in credentials, then run 'amx auth spotify' and 'amx auth apple'."))
	return nil
}

// setupCommand initializes configuration and the local cache database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and initialize the match cache",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}
