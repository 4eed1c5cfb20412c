package artifact_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mobarasa/roamtech-cypress/internal/artifact"
	"github.com/mobarasa/roamtech-cypress/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type screen struct {
	data []byte
	err  error
}

func (s screen) Screenshot(context.Context) ([]byte, error) {
	return s.data, s.err
}

func TestCaptureWritesScreenshot(t *testing.T) {
	dir := t.TempDir()
	c := artifact.NewFileCapturer(dir, slog.Default())

	ref, err := c.Capture(context.Background(), "home page/loads", 2, model.ArtifactScreenshot, screen{data: []byte("png")})
	require.NoError(t, err)

	assert.Equal(t, model.ArtifactScreenshot, ref.Kind)
	assert.Equal(t, 2, ref.Attempt)
	assert.Equal(t, filepath.Join(dir, artifact.TestDir("home page/loads"), "attempt-2.png"), ref.Location)
	assert.Equal(t, c.Location("home page/loads", 2, model.ArtifactScreenshot), ref.Location)

	data, err := os.ReadFile(ref.Location)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestCaptureTwiceOverwrites(t *testing.T) {
	dir := t.TempDir()
	c := artifact.NewFileCapturer(dir, slog.Default())
	ctx := context.Background()

	first, err := c.Capture(ctx, "test", 1, model.ArtifactScreenshot, screen{data: []byte("first")})
	require.NoError(t, err)
	second, err := c.Capture(ctx, "test", 1, model.ArtifactScreenshot, screen{data: []byte("second")})
	require.NoError(t, err)

	assert.Equal(t, first.Location, second.Location)

	entries, err := os.ReadDir(filepath.Join(dir, "test"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	data, err := os.ReadFile(second.Location)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestCaptureWithoutSourceIsNoop(t *testing.T) {
	c := artifact.NewFileCapturer(t.TempDir(), slog.Default())

	ref, err := c.Capture(context.Background(), "api", 1, model.ArtifactScreenshot, nil)
	assert.NoError(t, err)
	assert.Equal(t, model.ArtifactNone, ref.Kind)
	assert.Empty(t, ref.Location)
}

func TestCaptureVideoWithoutRecorderIsNoop(t *testing.T) {
	c := artifact.NewFileCapturer(t.TempDir(), slog.Default())

	ref, err := c.Capture(context.Background(), "ui", 1, model.ArtifactVideo, screen{data: []byte("png")})
	assert.NoError(t, err)
	assert.Equal(t, model.ArtifactNone, ref.Kind)
}

func TestCaptureFailureIsReturned(t *testing.T) {
	c := artifact.NewFileCapturer(t.TempDir(), slog.Default())

	_, err := c.Capture(context.Background(), "ui", 1, model.ArtifactScreenshot, screen{err: errors.New("browser crashed")})
	assert.ErrorContains(t, err, "browser crashed")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a-b.c", artifact.SanitizeName("a/b.c"))
	assert.Equal(t, "unnamed", artifact.SanitizeName(".."))
}

func TestCaptureOfSimilarTestIDsDoesNotCollide(t *testing.T) {
	dir := t.TempDir()
	c := artifact.NewFileCapturer(dir, slog.Default())
	ctx := context.Background()

	slash, err := c.Capture(ctx, "login/form", 1, model.ArtifactScreenshot, screen{data: []byte("slash")})
	require.NoError(t, err)
	space, err := c.Capture(ctx, "login form", 1, model.ArtifactScreenshot, screen{data: []byte("space")})
	require.NoError(t, err)
	plain, err := c.Capture(ctx, "login-form", 1, model.ArtifactScreenshot, screen{data: []byte("plain")})
	require.NoError(t, err)

	assert.NotEqual(t, slash.Location, space.Location)
	assert.NotEqual(t, slash.Location, plain.Location)
	assert.NotEqual(t, space.Location, plain.Location)

	for ref, want := range map[string]string{slash.Location: "slash", space.Location: "space", plain.Location: "plain"} {
		data, err := os.ReadFile(ref)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestTestDir(t *testing.T) {
	assert.Equal(t, "checkout", artifact.TestDir("checkout"))
	assert.Regexp(t, `^login-form~[0-9a-f]{8}$`, artifact.TestDir("login/form"))
	assert.Equal(t, artifact.TestDir("login/form"), artifact.TestDir("login/form"))
}
