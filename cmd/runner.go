package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/amx/internal/catalog"
	"github.com/desertthunder/amx/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.toml"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, transferCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// reloadConfig re-reads the config file named by the command's --config flag
// and applies the root --verbose flag to the logger.
func (r *Runner) reloadConfig(cmd *cli.Command) error {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return err
	}

	r.config = config
	return nil
}

// spotifyProvider builds the Spotify catalog provider from configuration.
func (r *Runner) spotifyProvider() (*catalog.SpotifyProvider, error) {
	return catalog.NewSpotifyProvider(r.config.Credentials.Spotify, r.config.Catalog.SpotifyMarket)
}

// authedSpotify builds a Spotify provider and installs the saved token.
// A saved refresh token forces a refresh on first use so stale access
// tokens never surface as auth failures mid-transfer.
func (r *Runner) authedSpotify(ctx context.Context) (*catalog.SpotifyProvider, error) {
	provider, err := r.spotifyProvider()
	if err != nil {
		return nil, err
	}

	creds := r.config.Credentials.Spotify
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("%w: run 'amx auth spotify' first", shared.ErrNotAuthenticated)
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	}
	if creds.RefreshToken != "" {
		token.Expiry = time.Now().Add(-time.Minute)
	}

	if err := provider.Authenticate(ctx, token); err != nil {
		return nil, err
	}

	return provider, nil
}

// appleProvider builds the Apple Music catalog provider from configuration.
func (r *Runner) appleProvider() (*catalog.AppleMusicProvider, error) {
	provider, err := catalog.NewAppleMusicProvider(r.config.Credentials.Apple, r.config.Catalog.AppleStorefront)
	if err != nil {
		return nil, err
	}

	if r.config.Credentials.Apple.UserToken == "" {
		return nil, fmt.Errorf("%w: run 'amx auth apple' first", shared.ErrNotAuthenticated)
	}

	return provider, nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
