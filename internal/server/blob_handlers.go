package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/tilepyramid/internal/codec"
	"github.com/MeKo-Tech/tilepyramid/internal/pyramid"
	"github.com/MeKo-Tech/tilepyramid/internal/storage"
)

// handleGetImage streams back a pyramid level blob, optionally re-encoded
// to the MIME type the client asks for via Accept.
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	uuid, level, ok := parseLevelName(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	d, err := s.registry.Find(r.Context(), uuid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.log().Error("failed to load pyramid", "uuid", uuid, "error", err)
		http.Error(w, "failed to load pyramid", http.StatusInternalServerError)
		return
	}
	if level < 0 || level >= len(d.Levels) {
		http.NotFound(w, r)
		return
	}

	data, err := s.blobs.ReadAll(r.Context(), d.Levels[level].BlobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.log().Error("failed to read level blob", "uuid", uuid, "level", level, "error", err)
		http.Error(w, "failed to read image", http.StatusInternalServerError)
		return
	}

	target := negotiateMIME(r.Header.Get("Accept"), d.MIMEType)
	if target != d.MIMEType {
		data, err = reencode(data, d.MIMEType, target)
		if err != nil {
			s.log().Error("failed to re-encode level", "uuid", uuid, "level", level, "error", err)
			http.Error(w, "failed to re-encode image", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", target)
	_, _ = w.Write(data)
}

// handleGetTile streams back a tile blob. Stored tiles are
// Brotli-compressed; they are served as-is with Content-Encoding br
// unless the client asks for a different MIME type, in which case the
// tile is decompressed, re-encoded and served raw.
func (s *Server) handleGetTile(w http.ResponseWriter, r *http.Request) {
	uuid, level, tile, ok := parseTileName(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	d, err := s.registry.Find(r.Context(), uuid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.log().Error("failed to load pyramid", "uuid", uuid, "error", err)
		http.Error(w, "failed to load pyramid", http.StatusInternalServerError)
		return
	}

	ref, ok := findTile(d, level, tile)
	if !ok {
		http.NotFound(w, r)
		return
	}

	data, err := s.blobs.ReadAll(r.Context(), ref.BlobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.log().Error("failed to read tile blob", "name", ref.Name, "error", err)
		http.Error(w, "failed to read tile", http.StatusInternalServerError)
		return
	}

	target := negotiateMIME(r.Header.Get("Accept"), d.MIMEType)
	if target == d.MIMEType {
		w.Header().Set("Content-Type", d.MIMEType)
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(data)
		return
	}

	decompressed, err := pyramid.DecompressBrotli(data)
	if err != nil {
		s.log().Error("failed to decompress tile", "name", ref.Name, "error", err)
		http.Error(w, "failed to decompress tile", http.StatusInternalServerError)
		return
	}
	reencoded, err := reencode(decompressed, d.MIMEType, target)
	if err != nil {
		s.log().Error("failed to re-encode tile", "name", ref.Name, "error", err)
		http.Error(w, "failed to re-encode tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", target)
	_, _ = w.Write(reencoded)
}

// findTile locates a tile in a published manifest. Tiles are only
// addressable once the descriptor reached done.
func findTile(d *pyramid.Descriptor, level, tile int) (pyramid.TileRef, bool) {
	if d.Tiles.State != pyramid.TilesDone {
		return pyramid.TileRef{}, false
	}
	for _, lt := range d.Tiles.LevelTiles {
		if lt.Index != level {
			continue
		}
		if tile < 0 || tile >= len(lt.Tiles) {
			return pyramid.TileRef{}, false
		}
		return lt.Tiles[tile], true
	}
	return pyramid.TileRef{}, false
}

// reencode decodes bytes in the source MIME and encodes them in the
// target MIME.
func reencode(data []byte, from, to string) ([]byte, error) {
	raster, err := codec.Decode(data, from)
	if err != nil {
		return nil, err
	}
	return codec.Encode(raster, to)
}

// negotiateMIME picks the response MIME type from an Accept header,
// falling back to the stored type when the header is absent or names no
// supported format.
func negotiateMIME(accept, stored string) string {
	for _, part := range strings.Split(accept, ",") {
		mt := mediaType(part)
		if mt == "" || mt == "*/*" || mt == "image/*" {
			return stored
		}
		if codec.Supported(mt) {
			return mt
		}
	}
	return stored
}

// parseLevelName splits a public level name like "uuid_L3". A file
// extension, if present, is ignored.
func parseLevelName(name string) (string, int, bool) {
	name = strings.SplitN(name, ".", 2)[0]
	i := strings.LastIndex(name, "_L")
	if i <= 0 {
		return "", 0, false
	}
	level, err := strconv.Atoi(name[i+2:])
	if err != nil {
		return "", 0, false
	}
	return name[:i], level, true
}

// parseTileName splits a public tile name like "uuid_L3_T7".
func parseTileName(name string) (string, int, int, bool) {
	name = strings.SplitN(name, ".", 2)[0]
	i := strings.LastIndex(name, "_T")
	if i <= 0 {
		return "", 0, 0, false
	}
	tile, err := strconv.Atoi(name[i+2:])
	if err != nil {
		return "", 0, 0, false
	}
	uuid, level, ok := parseLevelName(name[:i])
	if !ok {
		return "", 0, 0, false
	}
	return uuid, level, tile, ok
}
