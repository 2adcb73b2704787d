package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amx/internal/cache"
	"github.com/desertthunder/amx/internal/catalog"
	"github.com/desertthunder/amx/internal/shared"
	"github.com/desertthunder/amx/internal/transfer"
	"github.com/desertthunder/amx/internal/ui"
)

// parseDirection maps a direction argument to source/destination names.
func parseDirection(direction string) (string, string, error) {
	switch direction {
	case "spotify-to-apple":
		return catalog.Spotify, catalog.AppleMusic, nil
	case "apple-to-spotify":
		return catalog.AppleMusic, catalog.Spotify, nil
	default:
		return "", "", fmt.Errorf("%w: direction must be 'spotify-to-apple' or 'apple-to-spotify', got %q",
			shared.ErrInvalidArgument, direction)
	}
}

// selectCategories reads the category flags. No flags (or --all) means
// everything.
func selectCategories(cmd *cli.Command) []transfer.Category {
	var categories []transfer.Category
	if cmd.Bool("liked-songs") {
		categories = append(categories, transfer.LikedSongs)
	}
	if cmd.Bool("playlists") {
		categories = append(categories, transfer.Playlists)
	}
	if cmd.Bool("albums") {
		categories = append(categories, transfer.Albums)
	}

	if cmd.Bool("all") || len(categories) == 0 {
		return transfer.AllCategories
	}
	return categories
}

// TransferRun moves the selected library categories between catalogs.
func (r *Runner) TransferRun(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	sourceName, destName, err := parseDirection(cmd.StringArg("direction"))
	if err != nil {
		return err
	}

	spotify, err := r.authedSpotify(ctx)
	if err != nil {
		return err
	}
	apple, err := r.appleProvider()
	if err != nil {
		return err
	}

	var source, dest catalog.Provider = spotify, apple
	if sourceName == catalog.AppleMusic {
		source, dest = apple, spotify
	}

	dryRun := cmd.Bool("dry-run")
	categories := selectCategories(cmd)

	matcher, closeCache, err := r.buildMatcher()
	if err != nil {
		return err
	}
	defer closeCache()

	engine := transfer.NewEngine(transfer.EngineOpts{
		Source:          source,
		Dest:            dest,
		Matcher:         matcher,
		WritesPerSecond: r.config.Transfer.WritesPerSecond,
		DryRun:          dryRun,
		Logger:          shared.WithLogger(r.logger, "command", "transfer"),
	})

	r.writePlain("Transferring %s -> %s\n", sourceName, destName)
	if dryRun {
		r.writePlain("%s\n", ui.Warn("Dry run: nothing will be written."))
	}

	// Ctrl-C stops between items; the partial report still prints.
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	progressCh := make(chan transfer.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.State {
			case transfer.Enumerating:
				r.writePlain("📥 %s\n", update.Message)
			case transfer.Matching:
				r.writePlain("   %s\n", update.Message)
			case transfer.Writing:
				r.writePlain("📝 %s\n", update.Message)
			case transfer.Reported:
				r.writePlain("✓ %s\n", update.Message)
			}
		}
	}()

	outcomes, runErr := engine.Run(runCtx, categories, progressCh)
	close(progressCh)
	<-done

	report := transfer.NewReport(sourceName, destName, dryRun)
	for _, outcome := range outcomes {
		report.Add(outcome)
		if outcome.Err != nil {
			r.writePlain("%s\n", ui.Err(fmt.Sprintf("✗ %s failed: %v", outcome.Category, outcome.Err)))
		}
	}
	if errors.Is(runErr, context.Canceled) {
		r.logger.Warn("transfer cancelled, reporting completed work")
		report.MarkPartial()
	} else if runErr != nil {
		return runErr
	}

	r.writePlainln("%s", ui.Title("Transfer Report"))
	r.writePlain("%s", report.Render())

	if report.HasUnmatched() {
		r.writePlain("%s\n", ui.Warn("Some tracks did not transfer; they are listed above with the reason."))
	} else if !report.Partial {
		r.writePlain("%s\n", ui.OK("✓ Transfer complete."))
	}

	return nil
}

// buildMatcher wires the match cache in when one is configured. The returned
// cleanup closes the cache database.
func (r *Runner) buildMatcher() (*transfer.Matcher, func(), error) {
	noop := func() {}

	if r.config.Cache.Path == "" {
		return transfer.NewMatcher(transfer.MatcherOpts{Attempts: r.config.Transfer.RetryAttempts}), noop, nil
	}

	db, err := shared.NewDatabase(r.config.Cache.Path)
	if err != nil {
		r.logger.Warn("match cache unavailable, continuing without it", "error", err)
		return transfer.NewMatcher(transfer.MatcherOpts{Attempts: r.config.Transfer.RetryAttempts}), noop, nil
	}
	shared.ConfigureDatabase(db, r.config.Cache.MaxOpenConns, r.config.Cache.MaxIdleConns)

	repo := cache.NewMatchRepository(db)
	if err := repo.Init(); err != nil {
		db.Close()
		return nil, noop, err
	}

	matcher := transfer.NewMatcher(transfer.MatcherOpts{
		Cache:    repo,
		Attempts: r.config.Transfer.RetryAttempts,
	})
	return matcher, func() { db.Close() }, nil
}

// transferCommand handles library transfer operations
func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer your library between Spotify and Apple Music",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "direction",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "liked-songs",
				Usage: "Transfer liked songs",
			},
			&cli.BoolFlag{
				Name:  "playlists",
				Usage: "Transfer playlists you own",
			},
			&cli.BoolFlag{
				Name:  "albums",
				Usage: "Transfer saved albums",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Transfer every category (default when no category flag is set)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Resolve matches without writing to the destination",
			},
		},
		Action: r.TransferRun,
	}
}
