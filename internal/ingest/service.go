// Package ingest implements the synchronous pyramid ingestion phase.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/MeKo-Tech/tilepyramid/internal/codec"
	"github.com/MeKo-Tech/tilepyramid/internal/metrics"
	"github.com/MeKo-Tech/tilepyramid/internal/pyramid"
	"github.com/MeKo-Tech/tilepyramid/internal/storage"
)

// Scheduler hands a tiling job for the given pyramid to the background
// worker pool.
type Scheduler interface {
	Schedule(uuid string) error
}

// Service orchestrates upload, pyramid build, level persistence and
// descriptor publication.
type Service struct {
	blobs     *storage.BlobStore
	registry  *storage.Registry
	scheduler Scheduler
	logger    *slog.Logger
}

// New creates an ingest service.
func New(blobs *storage.BlobStore, registry *storage.Registry, scheduler Scheduler, logger *slog.Logger) *Service {
	return &Service{
		blobs:     blobs,
		registry:  registry,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Ingest decodes the uploaded image, builds the full mip pyramid, writes
// each level to blob storage, publishes the descriptor with tiles pending
// and schedules the tiling job.
//
// Failures before the descriptor insert leave no trace in the registry;
// already-written level blobs are orphaned. When scheduling fails the
// descriptor is still returned along with the error so the caller can
// report a server error for a created pyramid.
func (s *Service) Ingest(ctx context.Context, data []byte, mime, filename string) (*pyramid.Descriptor, error) {
	start := time.Now()

	src, err := codec.Decode(data, mime)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	id := uuid.NewString()
	s.log().Info("ingesting image",
		"uuid", id,
		"mime_type", mime,
		"size", humanize.Bytes(uint64(len(data))),
		"width", src.Width(),
		"height", src.Height(),
	)

	rasters, err := pyramid.Build(src)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	levels := make([]pyramid.Level, len(rasters))
	for k, r := range rasters {
		blobID, err := s.persistLevel(ctx, r, mime)
		if err != nil {
			metrics.IngestsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to persist level %d: %w", k, err)
		}
		levels[k] = pyramid.Level{
			Index:  k,
			Width:  r.Width(),
			Height: r.Height(),
			BlobID: blobID,
			URL:    pyramid.LevelURL(id, k),
		}
	}

	d := &pyramid.Descriptor{
		UUID:             id,
		MIMEType:         mime,
		OriginalFilename: filename,
		Levels:           levels,
		Tiles:            pyramid.Pending(),
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.registry.Create(ctx, d); err != nil {
		metrics.IngestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.IngestsTotal.WithLabelValues("ok").Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	s.log().Info("pyramid created", "uuid", id, "levels", len(levels), "elapsed", time.Since(start))

	if err := s.scheduler.Schedule(id); err != nil {
		return d, fmt.Errorf("failed to schedule tiling job for %s: %w", id, err)
	}
	return d, nil
}

// persistLevel encodes one level and streams it to blob storage.
func (s *Service) persistLevel(ctx context.Context, r *codec.Raster, mime string) (string, error) {
	encoded, err := codec.Encode(r, mime)
	if err != nil {
		return "", err
	}

	w, err := s.blobs.NewWriter(ctx)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(encoded); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return w.ID(), nil
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
