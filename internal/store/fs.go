package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pulpitlabs/sermonpipe/internal/analyze"
	"github.com/pulpitlabs/sermonpipe/internal/transcribe"
)

// FS stores artifacts on the local filesystem under <root>/<jobID>/.
// Writes land in a staging directory first and become visible with a
// single rename, so a failed save leaves nothing behind.
type FS struct {
	root   string
	logger *zap.Logger
}

// NewFS creates the root directory if needed.
func NewFS(root string, logger *zap.Logger) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &FS{root: root, logger: logger}, nil
}

// Save writes audio, transcript, and analysis for one job atomically.
func (s *FS) Save(ctx context.Context, jobID string, audio []byte, transcript transcribe.Transcript, analysis analyze.Result) (Locations, error) {
	if err := ctx.Err(); err != nil {
		return Locations{}, err
	}
	if jobID == "" {
		return Locations{}, fmt.Errorf("job ID is required")
	}

	final := filepath.Join(s.root, jobID)
	staging := final + ".staging"
	_ = os.RemoveAll(staging)

	success := false
	defer func() {
		if !success {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Locations{}, fmt.Errorf("create staging directory: %w", err)
	}

	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return Locations{}, fmt.Errorf("encode analysis: %w", err)
	}

	files := map[string][]byte{
		"audio.mp3":      audio,
		"transcript.txt": []byte(transcript.Text),
		"analysis.json":  analysisJSON,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(staging, name), data, 0o644); err != nil {
			return Locations{}, fmt.Errorf("write %s: %w", name, err)
		}
	}

	_ = os.RemoveAll(final)
	if err := os.Rename(staging, final); err != nil {
		return Locations{}, fmt.Errorf("publish artifacts: %w", err)
	}
	success = true

	s.logger.Info("artifacts persisted", zap.String("job_id", jobID), zap.String("dir", final))
	return Locations{
		Audio:      filepath.Join(final, "audio.mp3"),
		Transcript: filepath.Join(final, "transcript.txt"),
		Analysis:   filepath.Join(final, "analysis.json"),
	}, nil
}

var invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)
var repeatedUnderscores = regexp.MustCompile(`_+`)

// SafeFilename turns an arbitrary title into a filesystem-safe name,
// bounded to keep well under OS filename limits.
func SafeFilename(title, fallback string) string {
	name := strings.TrimSpace(invalidFilenameChars.ReplaceAllString(title, "_"))
	name = repeatedUnderscores.ReplaceAllString(name, "_")
	if name == "" || name == "_" {
		name = fallback
	}
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}

// EnsureUniquePath returns a path in dir for base that does not collide
// with an existing file, suffixing _1, _2, ... as needed.
func EnsureUniquePath(dir, base string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	candidate := filepath.Join(dir, base)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}
