package testsupport

import (
	"context"
	"testing"

	"vidgo/internal/config"
	"vidgo/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, kind queue.Kind, assetID int64) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), kind, assetID, nil)
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}

// NewAsset inserts an asset for tests using the provided store.
func NewAsset(t testing.TB, store *queue.Store, contentKey string) *queue.Asset {
	t.Helper()

	asset, _, err := store.UpsertAsset(context.Background(), &queue.Asset{
		Kind:       queue.AssetVideo,
		Source:     queue.SourceUpload,
		ContentKey: contentKey,
	})
	if err != nil {
		t.Fatalf("store.UpsertAsset: %v", err)
	}
	return asset
}
