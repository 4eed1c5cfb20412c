// Package artifact stores diagnostic snapshots of test attempts.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mobarasa/roamtech-cypress/internal/metric"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// Capturer captures an artifact of a test attempt. The source is the visual
// context of the attempt and may be nil.
type Capturer interface {
	Capture(ctx context.Context, testID string, attempt int, kind model.ArtifactKind, source any) (model.ArtifactRef, error)
}

// FileCapturer writes artifacts to <dir>/<test-dir>/attempt-<n>.<ext>, see
// TestDir.
// Capturing the same attempt twice overwrites the previous file.
type FileCapturer struct {
	dir string
	log *slog.Logger
}

func NewFileCapturer(dir string, log *slog.Logger) *FileCapturer {
	return &FileCapturer{dir: dir, log: log}
}

func (c *FileCapturer) Capture(ctx context.Context, testID string, attempt int, kind model.ArtifactKind, source any) (model.ArtifactRef, error) {
	ref := model.ArtifactRef{TestID: testID, Attempt: attempt, Kind: model.ArtifactNone}

	data, ok, err := snapshot(ctx, kind, source)
	if err != nil {
		metric.ArtifactCaptures.WithLabelValues(string(kind), "failed").Inc()
		return ref, fmt.Errorf("capturing %s: %w", kind, err)
	}
	if !ok {
		metric.ArtifactCaptures.WithLabelValues(string(kind), "unavailable").Inc()
		return ref, nil
	}

	location := c.Location(testID, attempt, kind)

	if err := writeFile(location, data); err != nil {
		metric.ArtifactCaptures.WithLabelValues(string(kind), "failed").Inc()
		return ref, fmt.Errorf("writing %s: %w", kind, err)
	}

	metric.ArtifactCaptures.WithLabelValues(string(kind), "captured").Inc()

	c.log.Debug("captured artifact", "test-id", testID, "attempt", attempt, "kind", kind, "location", location)

	ref.Kind = kind
	ref.Location = location

	return ref, nil
}

// Location returns the path of an artifact. It is stable for the same key.
func (c *FileCapturer) Location(testID string, attempt int, kind model.ArtifactKind) string {
	ext := "png"
	if kind == model.ArtifactVideo {
		ext = "webm"
	}

	return filepath.Join(c.dir, TestDir(testID), fmt.Sprintf("attempt-%d.%s", attempt, ext))
}

// snapshot returns false if the source does not support the artifact kind.
func snapshot(ctx context.Context, kind model.ArtifactKind, source any) ([]byte, bool, error) {
	if source == nil {
		return nil, false, nil
	}

	switch kind {
	case model.ArtifactScreenshot:
		s, ok := source.(model.Snapshotter)
		if !ok {
			return nil, false, nil
		}
		data, err := s.Screenshot(ctx)
		return data, err == nil, err
	case model.ArtifactVideo:
		r, ok := source.(model.VideoRecorder)
		if !ok {
			return nil, false, nil
		}
		data, err := r.Video(ctx)
		return data, err == nil, err
	}

	return nil, false, nil
}

// writeFile replaces the file atomically so that readers never
// see a partially written artifact.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".capture-*")
	if err != nil {
		return err
	}

	if _, err = f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}

	if err = f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}

	return os.Rename(f.Name(), path)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeName turns a test id into something that can be used as a file name.
func SanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "-")
	if s == "" || s == "." || s == ".." {
		return "unnamed"
	}

	return s
}

// TestDir returns the artifact directory name of a test. Ids that are not
// valid file names get a hash suffix, so different ids never share a directory.
func TestDir(testID string) string {
	s := SanitizeName(testID)
	if s == testID {
		return s
	}

	sum := sha256.Sum256([]byte(testID))

	return s + "~" + hex.EncodeToString(sum[:4])
}

// NopCapturer never captures anything.
type NopCapturer struct{}

func (NopCapturer) Capture(_ context.Context, testID string, attempt int, _ model.ArtifactKind, _ any) (model.ArtifactRef, error) {
	return model.ArtifactRef{TestID: testID, Attempt: attempt, Kind: model.ArtifactNone}, nil
}
