package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/desertthunder/mixtape/internal/server"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// AuthSpotify performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Services.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	spotifyService, err := services.NewSpotifyService(creds.Map(),
		services.WithSpotifyTransport(r.transport, 0),
		services.WithSpotifyLogger(shared.WithLogger(r.logger, "service", shared.ServiceSpotify)),
	)
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	token, err := r.doOAuth(ctx, spotifyService)
	if err != nil {
		return err
	}

	if err := r.config.Services.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: mixtape generate --dry-run --service spotify\n")

	return nil
}

func (r *Runner) doOAuth(ctx context.Context, spotifyService *services.SpotifyService) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	exchange := func(ctx context.Context, code string) (*oauth2.Token, error) {
		return spotifyService.Authenticate(ctx, map[string]string{"auth_code": code})
	}
	handler := server.NewOAuthHandler(exchange, state)

	addr := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	ln, err := r.listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	authURL := spotifyService.GetAuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", r.authTimeout)
	return server.AwaitCallback(ctx, ln, handler, r.authTimeout, r.logger)
}

// AuthAppleMusicToken signs a developer token from the configured MusicKit key and prints it.
func (r *Runner) AuthAppleMusicToken(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Services.AppleMusic

	key, err := services.LoadPrivateKey(creds.PrivateKeyPath)
	if err != nil {
		return err
	}

	token, expiry, err := services.DeveloperToken(creds.TeamID, creds.KeyID, key, time.Now(), services.DeveloperTokenTTL)
	if err != nil {
		return err
	}
	r.logger.Info("signed developer token", "team_id", creds.TeamID, "key_id", creds.KeyID, "expires", expiry)

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"token": token, "expires_at": expiry}, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", token)
	r.writePlain("\nExpires: %s\n", expiry.Format(time.RFC3339))
	return nil
}
