package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
	}
}

func TestStoreLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			body := "x-ray scan bytes"
			info, err := store.Put(ctx, "animals/A001/xray.png", strings.NewReader(body), PutOptions{
				ContentType: "image/png",
				Metadata:    map[string]string{"operator": "tester"},
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if info.Key != "animals/A001/xray.png" || info.Size != int64(len(body)) || info.ContentType != "image/png" {
				t.Fatalf("unexpected info %+v", info)
			}

			// create-only semantics
			if _, err := store.Put(ctx, "animals/A001/xray.png", strings.NewReader("again"), PutOptions{}); err == nil {
				t.Fatal("expected duplicate put rejected")
			} else if !strings.Contains(err.Error(), "already exists") {
				t.Fatalf("unexpected error %v", err)
			}

			head, err := store.Head(ctx, "animals/A001/xray.png")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if head.ContentType != "image/png" || head.Metadata["operator"] != "tester" {
				t.Fatalf("unexpected head %+v", head)
			}

			got, rc, err := store.Get(ctx, "animals/A001/xray.png")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil || string(data) != body {
				t.Fatalf("unexpected content %q err=%v", data, err)
			}
			if got.Size != int64(len(body)) {
				t.Fatalf("unexpected info %+v", got)
			}

			existed, err := store.Delete(ctx, "animals/A001/xray.png")
			if err != nil || !existed {
				t.Fatalf("expected deletion, got existed=%v err=%v", existed, err)
			}
			existed, err = store.Delete(ctx, "animals/A001/xray.png")
			if err != nil || existed {
				t.Fatalf("expected idempotent delete, got existed=%v err=%v", existed, err)
			}
		})
	}
}

func TestStoreMissingKeysWrapErrNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Head(ctx, "animals/A999/missing.png"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, _, err := store.Get(ctx, "animals/A999/missing.png"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreListFiltersByPrefixSorted(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []string{"animals/A002/b.txt", "animals/A001/a.txt", "cages/C-101/photo.png"} {
				if _, err := store.Put(ctx, key, strings.NewReader("data"), PutOptions{}); err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
			}
			infos, err := store.List(ctx, "animals/")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(infos) != 2 || infos[0].Key != "animals/A001/a.txt" || infos[1].Key != "animals/A002/b.txt" {
				t.Fatalf("unexpected listing %+v", infos)
			}
			all, err := store.List(ctx, "")
			if err != nil || len(all) != 3 {
				t.Fatalf("expected 3 blobs, got %d err=%v", len(all), err)
			}
		})
	}
}

func TestStorePresignURLUnsupported(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.PresignURL(context.Background(), "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("expected ErrUnsupported, got %v", err)
			}
		})
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../outside.txt", "/etc/passwd", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q rejected", key)
		}
	}
}

func TestFSStoreHidesSidecarsFromList(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx := context.Background()
	info, err := store.Put(ctx, "animals/A001/xray.png", strings.NewReader("bytes"), PutOptions{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.ETag == "" {
		t.Fatal("expected a content hash etag")
	}

	infos, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "animals/A001/xray.png" {
		t.Fatalf("expected sidecar hidden, got %+v", infos)
	}
	if infos[0].ETag != info.ETag || infos[0].ContentType != "image/png" {
		t.Fatalf("expected metadata from sidecar, got %+v", infos[0])
	}
}
