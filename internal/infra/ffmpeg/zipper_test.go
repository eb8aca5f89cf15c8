package ffmpeg

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("data-"+n), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := []string{}
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestCreateZipOrdersByFrameIndex(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, "keyframe_120.jpg", "keyframe_9.jpg", "keyframe_0.jpg")
	out := filepath.Join(t.TempDir(), "keyframes.zip")

	require.NoError(t, NewZipCreator().CreateZip(context.Background(), paths, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"keyframe_0.jpg", "keyframe_9.jpg", "keyframe_120.jpg"}, zipNames(t, data))
}

func TestWriteZipEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewZipCreator().WriteZip(context.Background(), &buf, nil))
	assert.Empty(t, zipNames(t, buf.Bytes()))
}

func TestCreateZipMissingFileRemovesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "keyframes.zip")
	err := NewZipCreator().CreateZip(context.Background(), []string{"/does/not/exist.jpg"}, out)
	require.Error(t, err)
	assert.NoFileExists(t, out)
}

func TestWriteZipCancelled(t *testing.T) {
	paths := writeFiles(t, t.TempDir(), "keyframe_1.jpg")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	assert.ErrorIs(t, NewZipCreator().WriteZip(ctx, &buf, paths), context.Canceled)
}

func TestSortKeyframePaths(t *testing.T) {
	in := []string{"b.txt", "/x/keyframe_11.jpg", "a.txt", "/y/keyframe_2.jpg"}
	assert.Equal(t, []string{"/y/keyframe_2.jpg", "/x/keyframe_11.jpg", "a.txt", "b.txt"}, SortKeyframePaths(in))
	assert.Equal(t, "b.txt", in[0])
}
