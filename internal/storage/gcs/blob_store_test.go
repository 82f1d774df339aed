package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.ErrorContains(t, err, "storage client")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()

	_, err = New(client, Config{})
	assert.ErrorContains(t, err, "bucket")

	store, err := New(client, Config{Bucket: "feeds-public"})
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheControl, store.cacheControl)

	_, err = store.PutObject(context.Background(), "", "application/json", nil)
	assert.ErrorContains(t, err, "path is required")
}
