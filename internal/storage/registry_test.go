package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/tilepyramid/internal/pyramid"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "pyramids.db"))
	if err != nil {
		t.Fatalf("OpenRegistry failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func testDescriptor(uuid string) *pyramid.Descriptor {
	return &pyramid.Descriptor{
		UUID:             uuid,
		MIMEType:         "image/png",
		OriginalFilename: "photo.png",
		Levels: []pyramid.Level{
			{Index: 0, Width: 8, Height: 8, BlobID: "blob-0", URL: pyramid.LevelURL(uuid, 0)},
			{Index: 1, Width: 4, Height: 4, BlobID: "blob-1", URL: pyramid.LevelURL(uuid, 1)},
		},
		Tiles:     pyramid.Pending(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestRegistryCreateFind(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	want := testDescriptor("u-1")
	if err := r.Create(ctx, want); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := r.Find(ctx, "u-1")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.UUID != want.UUID || got.MIMEType != want.MIMEType || got.OriginalFilename != want.OriginalFilename {
		t.Errorf("descriptor mismatch: got %+v", got)
	}
	if len(got.Levels) != 2 || got.Levels[1].BlobID != "blob-1" {
		t.Errorf("levels mismatch: %+v", got.Levels)
	}
	if got.Tiles.State != pyramid.TilesPending {
		t.Errorf("tiles state = %s, want pending", got.Tiles.State)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestRegistryDuplicateUUID(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	if err := r.Create(ctx, testDescriptor("dup")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Create(ctx, testDescriptor("dup")); !errors.Is(err, ErrDuplicateUUID) {
		t.Fatalf("expected ErrDuplicateUUID, got %v", err)
	}
}

func TestRegistryFindMissing(t *testing.T) {
	r := testRegistry(t)
	if _, err := r.Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d entries", len(list))
	}

	first := testDescriptor("first")
	first.CreatedAt = time.Unix(0, 1000).UTC()
	second := testDescriptor("second")
	second.CreatedAt = time.Unix(0, 2000).UTC()
	if err := r.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err = r.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].UUID != "first" || list[1].UUID != "second" {
		t.Fatalf("expected [first second] oldest first, got %+v", list)
	}
}

func TestRegistrySetTiles(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	if err := r.Create(ctx, testDescriptor("u-2")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	manifests := []pyramid.LevelTiles{
		{Index: 0, Width: 8, Height: 8, Tiles: []pyramid.TileRef{{Name: "u-2_L0_T0", BlobID: "t-0"}}},
	}
	if err := r.SetTiles(ctx, "u-2", pyramid.Done(manifests)); err != nil {
		t.Fatalf("SetTiles failed: %v", err)
	}

	got, err := r.Find(ctx, "u-2")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Tiles.State != pyramid.TilesDone {
		t.Fatalf("tiles state = %s, want done", got.Tiles.State)
	}
	if len(got.Tiles.LevelTiles) != 1 || got.Tiles.LevelTiles[0].Tiles[0].BlobID != "t-0" {
		t.Errorf("manifests mismatch: %+v", got.Tiles.LevelTiles)
	}

	if err := r.SetTiles(ctx, "missing", pyramid.Failed("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryClaimTiling(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	if err := r.Create(ctx, testDescriptor("u-3")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	claimed, err := r.ClaimTiling(ctx, "u-3")
	if err != nil {
		t.Fatalf("ClaimTiling failed: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should win")
	}

	claimed, err = r.ClaimTiling(ctx, "u-3")
	if err != nil {
		t.Fatalf("ClaimTiling failed: %v", err)
	}
	if claimed {
		t.Fatal("second claim should lose")
	}

	got, err := r.Find(ctx, "u-3")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Tiles.State != pyramid.TilesProcessing {
		t.Errorf("tiles state = %s, want processing", got.Tiles.State)
	}

	claimed, err = r.ClaimTiling(ctx, "missing")
	if err != nil {
		t.Fatalf("ClaimTiling failed: %v", err)
	}
	if claimed {
		t.Error("claiming a missing pyramid should not succeed")
	}
}

func TestRegistryDelete(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	if err := r.Create(ctx, testDescriptor("u-4")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Delete(ctx, "u-4"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := r.Find(ctx, "u-4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := r.Delete(ctx, "u-4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete, got %v", err)
	}
}
