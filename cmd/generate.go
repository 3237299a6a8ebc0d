package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/desertthunder/mixtape/internal/formatter"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
	"github.com/urfave/cli/v3"
)

// generateOpts are the parsed flags of `mixtape generate`.
type generateOpts struct {
	dryRun     bool
	production bool
	format     formatter.Format
	rng        *rand.Rand
	// cacheRand returns the eviction jitter source for one service's cache; nil leaves it unseeded.
	cacheRand func() *rand.Rand
}

// Generate builds a playlist for every selected service and either prints it or syncs it.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	opts := generateOpts{
		dryRun:     cmd.Bool("dry-run"),
		production: cmd.Bool("production"),
		rng:        r.rng,
	}
	if opts.dryRun && opts.production {
		return fmt.Errorf("%w: --dry-run and --production are mutually exclusive", shared.ErrInvalidFlag)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	opts.format = format

	if cmd.IsSet("seed") {
		seed := uint64(cmd.Int("seed"))
		opts.rng = rand.New(rand.NewPCG(seed, seed))
		opts.cacheRand = func() *rand.Rand { return rand.New(rand.NewPCG(seed, ^seed)) }
	}

	names := cmd.StringSlice("service")
	if len(names) == 0 {
		names = r.config.EnabledServices()
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: no services enabled", shared.ErrInvalidConfig)
	}

	for _, name := range names {
		if _, ok := r.registry[name]; !ok {
			return fmt.Errorf("%w: %s", shared.ErrUnknownService, name)
		}
		if !r.config.IsEnabled(name) {
			r.logger.Warn("service disabled in config, skipping", "service", name)
			continue
		}
		if err := r.generateFor(ctx, name, opts); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// generateFor runs one service end to end. The service's cache is always persisted, even on failure.
func (r *Runner) generateFor(ctx context.Context, name string, opts generateOpts) (err error) {
	logger := r.logger.With("service", name)

	store, err := r.openStore()
	if err != nil {
		return err
	}
	defer store.close()

	var jitter *rand.Rand
	if opts.cacheRand != nil {
		jitter = opts.cacheRand()
	}
	lookups, err := r.newCache(name, store, jitter)
	if err != nil {
		return err
	}

	svc, err := r.registry.Create(name, services.Deps{
		Config:     r.config,
		ConfigPath: r.configPath,
		Cache:      lookups,
		Logger:     r.logger,
		Transport:  r.transport,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	if err := svc.Login(ctx); err != nil {
		return err
	}

	req := tasks.RequestFromConfig(r.config, svc)
	if len(req.ArtistIDs) == 0 {
		logger.Warn("no artists configured, skipping")
		return nil
	}

	result, err := r.runEngine(ctx, svc, req, opts.rng)
	if err != nil {
		return err
	}

	if opts.dryRun {
		return formatter.Write(r.output, opts.format, result, fmt.Sprintf("mixtape (%s)", name))
	}

	playlist, err := r.config.Playlist(name, opts.production)
	if err != nil {
		return err
	}
	if opts.production {
		logger.Warn("PRODUCTION: syncing live playlist", "playlist", playlist, "tracks", len(result.TrackIDs))
	} else {
		logger.Warn("TEST: syncing test playlist", "playlist", playlist, "tracks", len(result.TrackIDs))
	}

	if err := svc.Sync(ctx, playlist, result.TrackIDs); err != nil {
		return fmt.Errorf("failed to sync %q: %w", playlist, err)
	}

	r.writePlain("✓ Synced %d tracks to %s playlist %q\n", len(result.TrackIDs), name, playlist)
	return nil
}

// runEngine generates a playlist while logging progress updates as they arrive.
func (r *Runner) runEngine(ctx context.Context, svc services.Service, req tasks.Request, rng *rand.Rand) (*tasks.Result, error) {
	engine := tasks.NewPlaylistEngine(svc, rng, r.logger)

	progress := make(chan tasks.ProgressUpdate, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			if update.Phase == tasks.CurateTracks {
				r.logger.Info(update.Message)
				continue
			}
			r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	result, err := engine.Generate(ctx, req, progress)
	close(progress)
	<-done

	return result, err
}
