package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amx/internal/server"
	"github.com/desertthunder/amx/internal/shared"
	"github.com/desertthunder/amx/internal/ui"
)

// AuthSpotify runs the OAuth2 authorization code flow against a loopback
// listener and saves the resulting tokens to the config file.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	provider, err := r.spotifyProvider()
	if err != nil {
		return err
	}

	state := shared.GenerateID()
	handler := server.NewCallbackHandler(provider.Exchange, state)

	srv, err := server.NewCallbackServer(r.config.Credentials.Spotify.RedirectURI, handler, r.logger)
	if err != nil {
		return err
	}
	srv.Start()

	authURL := provider.AuthURL(state)
	r.writePlain("Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("could not open browser", "error", err)
		r.writePlain("Visit this URL to authorize:\n%s\n", authURL)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	result := srv.Wait(waitCtx)
	if result.Error() != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Error())
	}

	r.config.Credentials.Spotify.AccessToken = result.Token.AccessToken
	r.config.Credentials.Spotify.RefreshToken = result.Token.RefreshToken
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return err
	}

	r.logger.Info("spotify tokens saved", "path", r.configPath)
	r.writePlain("%s\n", ui.OK("✓ Spotify authorization complete"))
	return nil
}

// AuthApple stores the Music User Token. Apple has no loopback flow for
// CLI apps; the token comes from a MusicKit-enabled page and is pasted in.
func (r *Runner) AuthApple(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	token := cmd.String("token")
	if token == "" {
		r.writePlain("Paste your Music User Token and press enter:\n")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	if token == "" {
		return fmt.Errorf("%w: empty user token", shared.ErrMissingArgument)
	}

	r.config.Credentials.Apple.UserToken = token
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return err
	}

	r.logger.Info("apple music user token saved", "path", r.configPath)
	r.writePlain("%s\n", ui.OK("✓ Apple Music user token saved"))
	return nil
}

// AuthStatus reports which services have credentials configured.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	spotify := r.config.Credentials.Spotify
	apple := r.config.Credentials.Apple

	r.writePlain("Spotify:\n")
	r.writePlain("  Client credentials: %s\n", configured(spotify.ClientID != "" && spotify.ClientSecret != ""))
	r.writePlain("  Tokens: %s\n", configured(spotify.AccessToken != ""))

	r.writePlain("Apple Music:\n")
	r.writePlain("  Developer key: %s\n", configured(apple.KeyPath != "" && apple.KeyID != "" && apple.TeamID != ""))
	r.writePlain("  User token: %s\n", configured(apple.UserToken != ""))

	return nil
}

func configured(ok bool) string {
	if ok {
		return ui.OK("✓ configured")
	}
	return ui.Warn("✗ missing")
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}

	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Authenticate with Spotify using OAuth2",
				Flags:  []cli.Flag{configFlag},
				Action: r.AuthSpotify,
			},
			{
				Name:  "apple",
				Usage: "Store an Apple Music user token",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "token",
						Usage: "Music User Token (prompted for when omitted)",
					},
				},
				Action: r.AuthApple,
			},
			{
				Name:   "status",
				Usage:  "Show which credentials are configured",
				Flags:  []cli.Flag{configFlag},
				Action: r.AuthStatus,
			},
		},
	}
}
