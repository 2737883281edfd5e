package snapshot

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 50, A: 255})
		}
	}
	return img
}

func TestSaveWritesJPEGUnderPathSafeLayout(t *testing.T) {
	base := t.TempDir()
	store := NewStore(base)

	frame := solidFrame(200, 150)
	rel, err := store.Save(context.Background(), frame, "comp-1", "cam-1", "person-1", "no_helmet", BBox{X1: 20, Y1: 20, X2: 100, Y2: 100}, "evt-1")
	require.NoError(t, err)
	assert.Contains(t, rel, filepath.Join("comp-1", "cam-1"))

	full := filepath.Join(base, rel)
	info, err := os.Stat(full)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSaveRejectsEmptyCropRegion(t *testing.T) {
	store := NewStore(t.TempDir())
	frame := solidFrame(50, 50)

	_, err := store.Save(context.Background(), frame, "comp-1", "cam-1", "person-1", "no_vest", BBox{X1: 200, Y1: 200, X2: 250, Y2: 250}, "evt-2")
	assert.ErrorIs(t, err, ErrEmptyCropRegion)
}

func TestCleanupRemovesOnlyExpiredDateDirectories(t *testing.T) {
	base := t.TempDir()
	old := filepath.Join(base, "comp-1", "cam-1", "2020-01-01")
	recent := filepath.Join(base, "comp-1", "cam-1", time.Now().UTC().Format("2006-01-02"))
	malformed := filepath.Join(base, "comp-1", "cam-1", "not-a-date")
	require.NoError(t, os.MkdirAll(old, 0750))
	require.NoError(t, os.MkdirAll(recent, 0750))
	require.NoError(t, os.MkdirAll(malformed, 0750))

	store := NewStore(base)
	n, err := store.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
	_, err = os.Stat(malformed)
	assert.NoError(t, err)
}
