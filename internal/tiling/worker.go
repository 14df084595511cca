// Package tiling implements the asynchronous tile generation phase.
package tiling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MeKo-Tech/tilepyramid/internal/codec"
	"github.com/MeKo-Tech/tilepyramid/internal/jobs"
	"github.com/MeKo-Tech/tilepyramid/internal/metrics"
	"github.com/MeKo-Tech/tilepyramid/internal/pyramid"
	"github.com/MeKo-Tech/tilepyramid/internal/storage"
	"github.com/MeKo-Tech/tilepyramid/internal/worker"
)

// Config configures the tiling worker.
type Config struct {
	TileWidth        int
	TileHeight       int
	BrotliQuality    int
	BrotliWindowLog2 int
}

// Worker turns pending pyramids into published tile manifests. It is the
// only mutator of a descriptor's tiles field.
type Worker struct {
	blobs    *storage.BlobStore
	registry *storage.Registry
	pool     *worker.Pool
	jobs     *jobs.Registry
	logger   *slog.Logger
	cfg      Config
}

// New creates a tiling worker running its jobs on the given pool.
func New(blobs *storage.BlobStore, registry *storage.Registry, pool *worker.Pool, jobRegistry *jobs.Registry, cfg Config, logger *slog.Logger) (*Worker, error) {
	if cfg.TileWidth < 1 || cfg.TileHeight < 1 {
		return nil, pyramid.ErrTileSize
	}
	if err := pyramid.ValidateBrotliParams(cfg.BrotliQuality, cfg.BrotliWindowLog2); err != nil {
		return nil, err
	}
	return &Worker{
		blobs:    blobs,
		registry: registry,
		pool:     pool,
		jobs:     jobRegistry,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// Schedule enqueues a tiling job for the given pyramid. Returns
// worker.ErrQueueFull when the pool queue is saturated.
func (w *Worker) Schedule(uuid string) error {
	handle := w.jobs.Add(uuid)
	err := w.pool.Schedule(func(ctx context.Context) {
		defer handle.Finish()
		w.run(ctx, uuid)
	})
	if err != nil {
		handle.Finish()
		return err
	}
	return nil
}

// run executes one tiling job end to end. Every failure funnels into the
// single terminal failed transition; it never propagates further.
func (w *Worker) run(ctx context.Context, uuid string) {
	claimed, err := w.registry.ClaimTiling(ctx, uuid)
	if err != nil {
		w.log().Error("failed to claim tiling job", "uuid", uuid, "error", err)
		metrics.TilingJobsTotal.WithLabelValues("lost").Inc()
		return
	}
	if !claimed {
		// A concurrent worker owns the job.
		w.log().Debug("tiling job already claimed", "uuid", uuid)
		metrics.TilingJobsTotal.WithLabelValues("lost").Inc()
		return
	}

	start := time.Now()
	d, err := w.registry.Find(ctx, uuid)
	if err == nil {
		var manifests []pyramid.LevelTiles
		manifests, err = w.generate(ctx, d)
		if err == nil {
			err = w.registry.SetTiles(ctx, uuid, pyramid.Done(manifests))
		}
	}
	if err != nil {
		w.log().Error("tiling job failed", "uuid", uuid, "error", err)
		metrics.TilingJobsTotal.WithLabelValues("failed").Inc()
		if ferr := w.registry.SetTiles(ctx, uuid, pyramid.Failed(err.Error())); ferr != nil {
			w.log().Error("failed to record tiling failure", "uuid", uuid, "error", ferr)
		}
		return
	}

	metrics.TilingJobsTotal.WithLabelValues("done").Inc()
	w.log().Info("tiling job done", "uuid", uuid, "elapsed", time.Since(start))
}

// generate tiles every level of the pyramid in parallel and persists the
// compressed tiles. Result slots are pre-sized and written at disjoint
// indices, so the cross-level join is the only synchronization point.
func (w *Worker) generate(ctx context.Context, d *pyramid.Descriptor) ([]pyramid.LevelTiles, error) {
	manifests := make([]pyramid.LevelTiles, len(d.Levels))
	sem := semaphore.NewWeighted(int64(w.pool.Size()))

	g, ctx := errgroup.WithContext(ctx)
	for i, lvl := range d.Levels {
		g.Go(func() error {
			manifest, err := w.generateLevel(ctx, d, lvl, sem)
			if err != nil {
				return fmt.Errorf("level %d: %w", lvl.Index, err)
			}
			manifests[i] = *manifest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return manifests, nil
}

func (w *Worker) generateLevel(ctx context.Context, d *pyramid.Descriptor, lvl pyramid.Level, sem *semaphore.Weighted) (*pyramid.LevelTiles, error) {
	data, err := w.blobs.ReadAll(ctx, lvl.BlobID)
	if err != nil {
		return nil, err
	}
	raster, err := codec.Decode(data, d.MIMEType)
	if err != nil {
		return nil, err
	}

	grid, err := pyramid.MakeTiles(raster, w.cfg.TileWidth, w.cfg.TileHeight)
	if err != nil {
		return nil, err
	}

	refs := make([]pyramid.TileRef, len(grid.Tiles))
	g, ctx := errgroup.WithContext(ctx)
	for j, tile := range grid.Tiles {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			compressed, cerr := pyramid.CompressTile(tile.Raster, d.MIMEType, w.cfg.BrotliQuality, w.cfg.BrotliWindowLog2)
			sem.Release(1)
			if cerr != nil {
				return fmt.Errorf("tile %d: %w", tile.Index, cerr)
			}

			blobID, perr := w.blobs.Put(ctx, compressed)
			if perr != nil {
				return fmt.Errorf("tile %d: %w", tile.Index, perr)
			}

			refs[j] = pyramid.TileRef{
				Index:  tile.Index,
				X:      tile.X,
				Y:      tile.Y,
				Width:  tile.Width,
				Height: tile.Height,
				BlobID: blobID,
				Name:   pyramid.TileName(d.UUID, lvl.Index, tile.Index),
			}
			metrics.TilesGenerated.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &pyramid.LevelTiles{
		Index:  lvl.Index,
		Width:  lvl.Width,
		Height: lvl.Height,
		Tiles:  refs,
	}, nil
}

func (w *Worker) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}
