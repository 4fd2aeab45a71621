package storage

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedDiskStorage(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	exists, err := store.Exists("campaigns/abc/media/ad.png")
	assert.NoError(t, err)
	assert.False(t, exists)

	content := []byte("fake image bytes")
	err = store.Write("campaigns/abc/media/ad.png", bytes.NewReader(content))
	assert.NoError(t, err)

	exists, err = store.Exists("campaigns/abc/media/ad.png")
	assert.NoError(t, err)
	assert.True(t, exists)

	size, err := store.Size("campaigns/abc/media/ad.png")
	assert.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	reader, err := store.Read("campaigns/abc/media/ad.png")
	assert.NoError(t, err)
	readBack, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.NoError(t, reader.Close())
	assert.Equal(t, content, readBack)

	err = store.Write("campaigns/abc/media/promo.mp4", bytes.NewReader([]byte("video")))
	assert.NoError(t, err)

	files, err := store.List("campaigns/abc/media")
	assert.NoError(t, err)
	assert.Len(t, files, 2)

	err = store.Delete("campaigns/abc/media/ad.png")
	assert.NoError(t, err)

	exists, err = store.Exists("campaigns/abc/media/ad.png")
	assert.NoError(t, err)
	assert.False(t, exists)

	usage, err := store.Usage()
	assert.NoError(t, err)
	assert.Greater(t, usage.TotalBytes, uint64(0))
}
