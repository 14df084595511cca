package storage

import (
	"context"
	"errors"
	"testing"
)

func testBlobStore(t *testing.T) *BlobStore {
	t.Helper()
	s, err := OpenBlobStore(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("OpenBlobStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBlobPutReadAll(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()

	id, err := s.Put(ctx, []byte("tile payload"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if id == "" {
		t.Fatal("Put returned an empty id")
	}

	data, err := s.ReadAll(ctx, id)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "tile payload" {
		t.Errorf("ReadAll = %q, want %q", data, "tile payload")
	}
}

func TestBlobWriterVisibleAfterClose(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()

	w, err := s.NewWriter(ctx)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := s.ReadAll(ctx, w.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before Close, got %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := s.ReadAll(ctx, w.ID())
	if err != nil {
		t.Fatalf("ReadAll after Close failed: %v", err)
	}
	if string(data) != "partial" {
		t.Errorf("ReadAll = %q, want %q", data, "partial")
	}
}

func TestBlobDistinctIDs(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()

	a, err := s.Put(ctx, []byte("a"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	b, err := s.Put(ctx, []byte("b"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if a == b {
		t.Error("two blobs share the same id")
	}
}

func TestBlobReadMissing(t *testing.T) {
	s := testBlobStore(t)
	if _, err := s.ReadAll(context.Background(), "no-such-blob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlobDelete(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()

	id, err := s.Put(ctx, []byte("short-lived"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.ReadAll(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Errorf("deleting a missing blob should be a no-op, got %v", err)
	}
}
