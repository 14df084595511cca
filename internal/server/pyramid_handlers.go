package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/MeKo-Tech/tilepyramid/internal/codec"
	"github.com/MeKo-Tech/tilepyramid/internal/pyramid"
	"github.com/MeKo-Tech/tilepyramid/internal/storage"
	"github.com/MeKo-Tech/tilepyramid/internal/worker"
)

// handleIngest accepts raw image bytes and returns the created
// descriptor. The tiling job runs in the background; clients poll the
// descriptor to observe progress.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	mimeType := mediaType(r.Header.Get("Content-Type"))
	if mimeType == "" {
		http.Error(w, "missing Content-Type header", http.StatusBadRequest)
		return
	}
	if !codec.Supported(mimeType) {
		http.Error(w, "unsupported image MIME type "+mimeType, http.StatusNotAcceptable)
		return
	}

	filename := ""
	if cd := r.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			filename = params["filename"]
		}
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	if s.cfg.IngestDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.IngestDeadline)
		defer cancel()
	}

	d, err := s.ingest.Ingest(ctx, data, mimeType, filename)
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrQueueFull):
			// The descriptor exists; the caller may re-submit to get the
			// tiling job scheduled.
			http.Error(w, "tiling queue is full", http.StatusServiceUnavailable)
		case errors.Is(err, codec.ErrUnsupportedFormat):
			http.Error(w, err.Error(), http.StatusNotAcceptable)
		case errors.Is(err, context.DeadlineExceeded):
			http.Error(w, "ingest deadline exceeded", http.StatusGatewayTimeout)
		default:
			s.log().Error("ingest failed", "error", err)
			http.Error(w, "failed to ingest image", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetPyramid(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	d, err := s.registry.Find(r.Context(), uuid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "pyramid "+uuid+" not found", http.StatusNotFound)
			return
		}
		s.log().Error("failed to load pyramid", "uuid", uuid, "error", err)
		http.Error(w, "failed to load pyramid", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListPyramids(w http.ResponseWriter, r *http.Request) {
	descriptors, err := s.registry.List(r.Context())
	if err != nil {
		s.log().Error("failed to list pyramids", "error", err)
		http.Error(w, "failed to list pyramids", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, descriptors)
}

// handleDeletePyramid removes the descriptor along with every level and
// tile blob it references.
func (s *Server) handleDeletePyramid(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	ctx := r.Context()

	d, err := s.registry.Find(ctx, uuid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "pyramid "+uuid+" not found", http.StatusNotFound)
			return
		}
		s.log().Error("failed to load pyramid", "uuid", uuid, "error", err)
		http.Error(w, "failed to load pyramid", http.StatusInternalServerError)
		return
	}

	for _, id := range blobIDs(d) {
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.log().Error("failed to delete blob", "uuid", uuid, "blob_id", id, "error", err)
			http.Error(w, "failed to delete pyramid blobs", http.StatusInternalServerError)
			return
		}
	}

	if err := s.registry.Delete(ctx, uuid); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log().Error("failed to delete pyramid", "uuid", uuid, "error", err)
		http.Error(w, "failed to delete pyramid", http.StatusInternalServerError)
		return
	}

	s.log().Info("pyramid deleted", "uuid", uuid)
	w.WriteHeader(http.StatusOK)
}

// blobIDs collects every blob referenced by the descriptor.
func blobIDs(d *pyramid.Descriptor) []string {
	ids := make([]string, 0, len(d.Levels))
	for _, lvl := range d.Levels {
		ids = append(ids, lvl.BlobID)
	}
	if d.Tiles.State == pyramid.TilesDone {
		for _, lt := range d.Tiles.LevelTiles {
			for _, t := range lt.Tiles {
				ids = append(ids, t.BlobID)
			}
		}
	}
	return ids
}
