package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "data/cache.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://data/cache.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	obj, ok := store.Get("data/cache.json")
	if !ok {
		t.Fatal("expected stored object")
	}
	if string(obj.Data) != "content" || obj.ContentType != "application/json" {
		t.Fatalf("unexpected object %+v", obj)
	}
	if paths := store.Paths(); len(paths) != 1 || paths[0] != "data/cache.json" {
		t.Fatalf("unexpected paths %v", paths)
	}
}
