package sources

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/services"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func replay(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n")))
}

func TestJSONLSource(t *testing.T) {
	src := NewJSONLSource("test.jsonl", replay(
		`{"seq":10,"width":640,"height":480,"faces":[[0.1,0.2]]}`,
		``,
		`{"faces":[]}`,
	), 0)
	ctx := context.Background()

	f, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), f.Seq)
	assert.Equal(t, 640, f.Width)
	assert.Equal(t, services.FormatLandmarksJSON, f.Format)
	assert.False(t, f.Timestamp.IsZero())

	faces, err := services.JSONProvider{}.Detect(ctx, f)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.InDelta(t, 0.2, faces[0].Points[0].Y, 1e-9)

	f, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestJSONLSourceBadLine(t *testing.T) {
	src := NewJSONLSource("bad.jsonl", replay(`{"faces":[]}`, `not json`), 0)
	_, err := src.Next(context.Background())
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jsonl:2")
}

func TestJSONLSourceCancelled(t *testing.T) {
	src := NewJSONLSource("x", replay(`{"faces":[]}`), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"faces":[[0,0]]}`+"\n"), 0o644))

	src, err := OpenJSONL(path, 0)
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Next(context.Background())
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	_, err = OpenJSONL(filepath.Join(t.TempDir(), "missing.jsonl"), 0)
	assert.Error(t, err)
}

// writeSplitImage saves a w x h image whose left half is red and right half blue.
func writeSplitImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 255, A: 255})
	right := imaging.New(w/2, h, color.NRGBA{B: 255, A: 255})
	img = imaging.Paste(img, right, image.Pt(w/2, 0))
	require.NoError(t, imaging.Save(img, path))
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestImageDirSource(t *testing.T) {
	dir := t.TempDir()
	writeSplitImage(t, filepath.Join(dir, "frame_002.png"), 8, 4)
	writeSplitImage(t, filepath.Join(dir, "frame_001.png"), 8, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	src, err := OpenImageDir(dir, ImageDirOptions{}, quiet)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	ctx := context.Background()
	f, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, "png", f.Format)
	assert.Equal(t, 8, f.Width)
	assert.Equal(t, 4, f.Height)

	r, _, b, _ := decode(t, f.Data).At(0, 0).RGBA()
	assert.NotZero(t, r)
	assert.Zero(t, b)

	_, err = src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestImageDirSourceMirror(t *testing.T) {
	dir := t.TempDir()
	writeSplitImage(t, filepath.Join(dir, "a.png"), 8, 4)

	src, err := OpenImageDir(dir, ImageDirOptions{Mirror: true}, quiet)
	require.NoError(t, err)
	f, err := src.Next(context.Background())
	require.NoError(t, err)

	r, _, b, _ := decode(t, f.Data).At(0, 0).RGBA()
	assert.Zero(t, r)
	assert.NotZero(t, b)
}

func TestImageDirSourceLoopAndSkip(t *testing.T) {
	dir := t.TempDir()
	writeSplitImage(t, filepath.Join(dir, "a.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("not a png"), 0o644))

	src, err := OpenImageDir(dir, ImageDirOptions{Loop: true}, quiet)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), f.Seq)
	}
}

func TestImageDirSourcePacing(t *testing.T) {
	dir := t.TempDir()
	writeSplitImage(t, filepath.Join(dir, "a.png"), 4, 4)

	src, err := OpenImageDir(dir, ImageDirOptions{Loop: true, FPS: 20}, quiet)
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := src.Next(ctx)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenImageDirEmpty(t *testing.T) {
	_, err := OpenImageDir(t.TempDir(), ImageDirOptions{Pattern: "*.png"}, quiet)
	assert.ErrorIs(t, err, ErrNoFrames)
}
