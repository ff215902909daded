package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulpitlabs/sermonpipe/internal/fault"
	"github.com/pulpitlabs/sermonpipe/internal/workspace"
)

type fakeRunner struct {
	calls    [][]string
	trimErr  error
	probeOut string
	probeErr error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) (string, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)

	switch name {
	case "ffmpeg":
		if f.trimErr != nil {
			return "", f.trimErr
		}
		// last arg is the output path
		return "", os.WriteFile(args[len(args)-1], []byte("trimmed-bytes"), 0o644)
	case "ffprobe":
		if f.probeErr != nil {
			return "", f.probeErr
		}
		if f.probeOut != "" {
			return f.probeOut, nil
		}
		return `{"format":{"duration":"120.5","format_name":"mp3","size":"13"}}`, nil
	default:
		return "", fmt.Errorf("unexpected command %s", name)
	}
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	m, err := workspace.NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	ws, err := m.Acquire()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Release(ws) })
	return ws
}

func newTestDownloader(client *http.Client) (*Downloader, *fakeRunner) {
	d := New(client, nil)
	d.Retries = 1
	d.NoProgress = true
	fake := &fakeRunner{}
	d.runner = fake
	return d, fake
}

func TestDownloadInvalidTrimRangeSkipsNetwork(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	d, _ := newTestDownloader(server.Client())
	ws := newTestWorkspace(t)

	cases := []struct {
		name string
		trim TrimRange
	}{
		{"start equals end", TrimRange{Start: 30, End: 30}},
		{"start after end", TrimRange{Start: 60, End: 30}},
		{"negative start", TrimRange{Start: -1, End: 30}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trim := tc.trim
			_, err := d.Download(context.Background(), server.URL+"/sermon.mp3", ws, &trim)
			require.Error(t, err)
			require.Equal(t, fault.InvalidArgument, fault.KindOf(err))
		})
	}

	require.Zero(t, requests.Load())
}

func TestDownloadWithoutTrim(t *testing.T) {
	t.Parallel()

	payload := []byte("fake-mp3-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	d, fake := newTestDownloader(server.Client())
	ws := newTestWorkspace(t)

	artifact, err := d.Download(context.Background(), server.URL+"/sermon.mp3", ws, nil)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
	require.Equal(t, filepath.Join(ws.Dir(), "source.mp3"), artifact.Path)
	require.InDelta(t, 120.5, artifact.Duration, 0.001)
	require.Equal(t, "mp3", artifact.Format)

	// no ffmpeg invocation, only the probe
	require.Len(t, fake.calls, 1)
	require.Equal(t, "ffprobe", fake.calls[0][0])
}

func TestDownloadTrimRemovesIntermediate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("full-audio"))
	}))
	defer server.Close()

	d, fake := newTestDownloader(server.Client())
	ws := newTestWorkspace(t)

	artifact, err := d.Download(context.Background(), server.URL+"/talk.m4a", ws, &TrimRange{Start: 90, End: 150})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws.Dir(), "trimmed.m4a"), artifact.Path)
	require.NoFileExists(t, filepath.Join(ws.Dir(), "source.m4a"))

	require.Equal(t, "ffmpeg", fake.calls[0][0])
	require.Contains(t, fake.calls[0], "00:01:30")
	require.Contains(t, fake.calls[0], "00:02:30")
	require.Contains(t, fake.calls[0], "copy")
}

func TestDownloadTrimFailureIsProcessing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("full-audio"))
	}))
	defer server.Close()

	d, fake := newTestDownloader(server.Client())
	fake.trimErr = errors.New("ffmpeg exit 1")
	ws := newTestWorkspace(t)

	_, err := d.Download(context.Background(), server.URL+"/talk.mp3", ws, &TrimRange{Start: 0, End: 10})
	require.Error(t, err)
	require.Equal(t, fault.Processing, fault.KindOf(err))
}

func TestDownloadProbeFailureIsProcessing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	d, fake := newTestDownloader(server.Client())
	fake.probeErr = errors.New("ffprobe exit 1")
	ws := newTestWorkspace(t)

	_, err := d.Download(context.Background(), server.URL+"/talk.mp3", ws, nil)
	require.Error(t, err)
	require.Equal(t, fault.Processing, fault.KindOf(err))
}

func TestDownloadNotFoundIsSourceUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d, _ := newTestDownloader(server.Client())
	ws := newTestWorkspace(t)

	_, err := d.Download(context.Background(), server.URL+"/missing.mp3", ws, nil)
	require.Error(t, err)
	require.Equal(t, fault.SourceUnavailable, fault.KindOf(err))
}

func TestDownloadPartialFetchIsSourceUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	d, _ := newTestDownloader(server.Client())
	ws := newTestWorkspace(t)

	_, err := d.Download(context.Background(), server.URL+"/drop.mp3", ws, nil)
	require.Error(t, err)
	require.Equal(t, fault.SourceUnavailable, fault.KindOf(err))
	require.NoFileExists(t, filepath.Join(ws.Dir(), "source.mp3"))
	require.NoFileExists(t, filepath.Join(ws.Dir(), "source.mp3.part"))
}

func TestDownloadRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	d, _ := newTestDownloader(server.Client())
	d.Retries = 3
	ws := newTestWorkspace(t)

	artifact, err := d.Download(context.Background(), server.URL+"/flaky.mp3", ws, nil)
	require.NoError(t, err)
	require.FileExists(t, artifact.Path)
	require.EqualValues(t, 3, requests.Load())
}

func TestSourceExt(t *testing.T) {
	t.Parallel()

	require.Equal(t, ".m4a", sourceExt("https://cdn.example.com/a/b/talk.m4a?token=abc"))
	require.Equal(t, ".mp3", sourceExt("https://cdn.example.com/stream"))
	require.Equal(t, ".wav", sourceExt("https://cdn.example.com/raw.WAV"))
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	require.Equal(t, "00:00:00", formatTimestamp(0))
	require.Equal(t, "00:01:30", formatTimestamp(90))
	require.Equal(t, "01:01:05", formatTimestamp(3665))
}
