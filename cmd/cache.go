package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amx/internal/cache"
	"github.com/desertthunder/amx/internal/shared"
	"github.com/desertthunder/amx/internal/ui"
)

// openMatchRepository opens the configured cache database.
func (r *Runner) openMatchRepository() (*cache.MatchRepository, func(), error) {
	db, err := shared.NewDatabase(r.config.Cache.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	repo := cache.NewMatchRepository(db)
	if err := repo.Init(); err != nil {
		db.Close()
		return nil, nil, err
	}

	return repo, func() { db.Close() }, nil
}

// CacheStats prints how many track matches are cached per service pair.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	repo, closeDB, err := r.openMatchRepository()
	if err != nil {
		return err
	}
	defer closeDB()

	stats, err := repo.Stats()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out, err := shared.MarshalJSON(stats, true)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", out)
	}

	r.writePlain("Cached matches: %d\n", stats.Total)
	for pair, count := range stats.Pairs {
		r.writePlain("  %s: %d\n", pair, count)
	}

	return nil
}

// CacheClear deletes all cached matches.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	repo, closeDB, err := r.openMatchRepository()
	if err != nil {
		return err
	}
	defer closeDB()

	removed, err := repo.Clear()
	if err != nil {
		return err
	}

	r.logger.Info("match cache cleared", "removed", removed)
	r.writePlain("%s\n", ui.OK(fmt.Sprintf("✓ Removed %d cached matches", removed)))
	return nil
}

// cacheCommand manages the local match cache
func cacheCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}

	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and manage the track match cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cached match counts",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print stats as JSON",
					},
				},
				Action: r.CacheStats,
			},
			{
				Name:   "clear",
				Usage:  "Delete all cached matches",
				Flags:  []cli.Flag{configFlag},
				Action: r.CacheClear,
			},
		},
	}
}
