package download

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pulpitlabs/sermonpipe/internal/fault"
)

// runner abstracts subprocess execution for testability.
type runner interface {
	run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (r *execRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed != "" {
			return "", fmt.Errorf("%s %s failed: %w (%s)", name, strings.Join(args, " "), err, trimmed)
		}
		return "", fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return trimmed, nil
}

// trim cuts [start, end) out of src into dest. Stream copy keeps the cut
// lossless; ffmpeg falls back to snapping at the nearest packet boundary.
func (d *Downloader) trim(ctx context.Context, src, dest string, r TrimRange) error {
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-ss", formatTimestamp(r.Start),
		"-to", formatTimestamp(r.End),
		"-i", src,
		"-c", "copy",
		dest,
	}
	if _, err := d.runner.run(ctx, "ffmpeg", args...); err != nil {
		return fault.Wrap(fault.Processing, "trim", err)
	}
	return nil
}

// probe reads duration, container format, and size via ffprobe.
func (d *Downloader) probe(ctx context.Context, file string) (Artifact, error) {
	out, err := d.runner.run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration,format_name,size",
		"-of", "json",
		file,
	)
	if err != nil {
		return Artifact{}, fault.Wrap(fault.Processing, "probe", err)
	}

	var parsed struct {
		Format struct {
			Duration   string `json:"duration"`
			FormatName string `json:"format_name"`
			Size       string `json:"size"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return Artifact{}, fault.Wrap(fault.Processing, "probe", fmt.Errorf("parse ffprobe output: %w", err))
	}

	duration, _ := strconv.ParseFloat(parsed.Format.Duration, 64)
	size, _ := strconv.ParseInt(parsed.Format.Size, 10, 64)

	return Artifact{
		Path:     file,
		Duration: duration,
		Format:   parsed.Format.FormatName,
		Size:     size,
	}, nil
}

func formatTimestamp(totalSeconds int) string {
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
