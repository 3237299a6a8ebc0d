// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/mixtape/internal/formatter"
	"github.com/urfave/cli/v3"
)

// generateCommand builds and publishes playlists
func generateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "generate",
		Aliases: []string{"gen"},
		Usage:   "Generate a balanced playlist from the configured artists",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the playlist instead of syncing it",
			},
			&cli.BoolFlag{
				Name:  "production",
				Usage: "Sync to the live playlist instead of the test playlist",
			},
			&cli.StringSliceFlag{
				Name:    "service",
				Aliases: []string{"s"},
				Usage:   "Service to generate for (repeatable; default: every enabled service)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Dry-run output format (text, markdown, csv, json)",
				Value:   string(formatter.Text),
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "Seed for reproducible playlists",
			},
		},
		Action: r.Generate,
	}
}

// authCommand handles service credentials
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with music services",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Authenticate with Spotify using OAuth2",
				Action: r.AuthSpotify,
			},
			{
				Name:    "applemusic",
				Aliases: []string{"apple"},
				Usage:   "Apple Music credentials",
				Commands: []*cli.Command{
					{
						Name:  "token",
						Usage: "Sign a developer token with the configured MusicKit key",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "json",
								Usage: "Output raw JSON",
							},
							&cli.BoolFlag{
								Name:  "pretty",
								Usage: "Pretty-print output",
							},
						},
						Action: r.AuthAppleMusicToken,
					},
				},
			},
		},
	}
}

// cacheCommand inspects and clears the lookup caches
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the per-service lookup caches",
		Commands: []*cli.Command{
			{
				Name:  "info",
				Usage: "Show cache sizes and ages",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.CacheShow,
			},
			{
				Name:  "clear",
				Usage: "Delete persisted caches",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "service",
						Aliases: []string{"s"},
						Usage:   "Service whose cache to clear (repeatable; default: all)",
					},
				},
				Action: r.CacheClear,
			},
		},
	}
}

// setupCommand initializes config and storage
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example config to --config",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}
