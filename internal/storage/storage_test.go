package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageKey(t *testing.T) {
	key, err := ImageKey("The Big Lebowski", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "movies/the-big-lebowski/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	key, err = ImageKey("", "IMAGE/JPEG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "movies/untitled/"))

	_, err = ImageKey("Heat", "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, validateKey("movies/heat/a.png"))
	for _, key := range []string{"", "/etc/passwd", "movies/../secret", "movies//a.png", "./a"} {
		assert.ErrorIs(t, validateKey(key), ErrInvalidKey, key)
	}
}

func TestLocalPutAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "http://localhost:8080/media/")
	require.NoError(t, err)

	obj, err := store.Put(context.Background(), "movies/heat/cover.png", strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/movies/heat/cover.png", obj.URL)
	assert.EqualValues(t, 9, obj.Size)

	data, err := os.ReadFile(filepath.Join(dir, "movies", "heat", "cover.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete(context.Background(), "movies/heat/cover.png"))
	_, err = os.Stat(filepath.Join(dir, "movies", "heat", "cover.png"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete(context.Background(), "movies/heat/cover.png"))
}

func TestLocalRejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "../escape.png", strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Equal(t, "/movies/a.png", store.URL("movies/a.png"))
}
