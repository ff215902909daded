// Package download fetches source media into a job workspace and
// produces the trimmed audio artifact the rest of the pipeline consumes.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/pulpitlabs/sermonpipe/internal/fault"
	"github.com/pulpitlabs/sermonpipe/internal/workspace"
)

// TrimRange is a cut window in whole seconds from the start of the media.
type TrimRange struct {
	Start int
	End   int
}

// Artifact describes the single audio file a download produced.
type Artifact struct {
	Path     string
	Duration float64
	Format   string
	Size     int64
}

// Downloader fetches media over HTTP and trims it with ffmpeg.
type Downloader struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Retries    int
	NoProgress bool

	runner runner
}

// New returns a downloader with sensible defaults filled in.
func New(client *http.Client, logger *zap.Logger) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		HTTPClient: client,
		Logger:     logger,
		Retries:    3,
		runner:     &execRunner{},
	}
}

// Download fetches the source into the workspace, optionally trims it to
// the requested window, and returns the final artifact. Trim validation
// happens before any network I/O.
func (d *Downloader) Download(ctx context.Context, source string, ws *workspace.Workspace, trim *TrimRange) (Artifact, error) {
	if source == "" {
		return Artifact{}, fault.New(fault.InvalidArgument, "download", "source URL is required")
	}
	if trim != nil {
		if trim.Start < 0 || trim.End < 0 {
			return Artifact{}, fault.New(fault.InvalidArgument, "download", "trim offsets must be non-negative")
		}
		if trim.Start >= trim.End {
			return Artifact{}, fault.New(fault.InvalidArgument, "download", "trim start %d must be before end %d", trim.Start, trim.End)
		}
	}

	dest := ws.Join("source" + sourceExt(source))
	if err := d.fetch(ctx, source, dest); err != nil {
		return Artifact{}, err
	}

	final := dest
	if trim != nil {
		trimmed := ws.Join("trimmed" + path.Ext(dest))
		if err := d.trim(ctx, dest, trimmed, *trim); err != nil {
			return Artifact{}, err
		}
		// Drop the untrimmed intermediate so long sources do not pile up on disk.
		if err := os.Remove(dest); err != nil {
			d.Logger.Warn("failed to remove untrimmed intermediate", zap.String("path", dest), zap.Error(err))
		}
		final = trimmed
	}

	return d.probe(ctx, final)
}

func (d *Downloader) fetch(ctx context.Context, source, dest string) error {
	retries := d.Retries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			d.Logger.Warn("retrying fetch",
				zap.Int("attempt", attempt),
				zap.Int("max", retries),
				zap.String("source", source))
			select {
			case <-ctx.Done():
				return fault.Wrap(fault.SourceUnavailable, "download", ctx.Err())
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
		}

		lastErr = d.fetchOnce(ctx, source, dest)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			break
		}
	}

	return fault.Wrap(fault.SourceUnavailable, "download", lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, source, dest string) error {
	tempPath := dest + ".part"
	_ = os.Remove(tempPath)

	outFile, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		_ = outFile.Close()
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "sermonpipe/1")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var writer io.Writer = outFile
	var bar *progressbar.ProgressBar
	if shouldRenderProgress(d.NoProgress, resp.ContentLength) {
		bar = progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		writer = io.MultiWriter(outFile, bar)
	}

	written, err := io.Copy(writer, resp.Body)
	if err != nil {
		return fmt.Errorf("read source body: %w", err)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	// A short read is a truncated download; never hand a partial file to the trimmer.
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("partial fetch: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := outFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, dest); err != nil {
		return fmt.Errorf("move temp file into destination: %w", err)
	}

	success = true
	return nil
}

func sourceExt(source string) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(source, "?", 2)[0]))
	switch ext {
	case ".mp3", ".m4a", ".wav", ".ogg", ".flac", ".aac", ".opus":
		return ext
	default:
		return ".mp3"
	}
}

func shouldRenderProgress(noProgress bool, contentLength int64) bool {
	if noProgress {
		return false
	}
	if contentLength <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
