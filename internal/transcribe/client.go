// Package transcribe is the HTTP client for the remote transcription
// service. It never runs inference locally; it uploads audio and
// validates the response shape.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pulpitlabs/sermonpipe/internal/download"
	"github.com/pulpitlabs/sermonpipe/internal/fault"
)

// Transcript is the validated output of a transcription call. Fields the
// provider returns beyond `text` are preserved opaquely in Raw.
type Transcript struct {
	Text     string
	Language string
	Raw      map[string]json.RawMessage
}

// Client uploads audio artifacts to a transcription endpoint.
type Client struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient builds a transcription client. The timeout is mandatory; a
// transcription call must never wait unbounded.
func NewClient(url, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		URL:        url,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

// Transcribe uploads the artifact as multipart form data with a language
// hint and returns the validated transcript.
func (c *Client) Transcribe(ctx context.Context, artifact download.Artifact, language string) (Transcript, error) {
	if c.URL == "" {
		return Transcript{}, fault.New(fault.Resource, "transcribe", "transcription endpoint is not configured")
	}
	if language == "" {
		language = "en"
	}

	body, contentType, err := buildUpload(artifact.Path, language)
	if err != nil {
		return Transcript{}, fault.Wrap(fault.Processing, "transcribe", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, body)
	if err != nil {
		return Transcript{}, fault.Wrap(fault.Upstream, "transcribe", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	started := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Transcript{}, fault.Wrap(fault.Upstream, "transcribe", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fault.Wrap(fault.Upstream, "transcribe", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Transcript{}, fault.New(fault.Upstream, "transcribe", "status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	transcript, err := parseResponse(respBody)
	if err != nil {
		return Transcript{}, err
	}
	transcript.Language = language

	c.Logger.Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("chars", len(transcript.Text)))
	return transcript, nil
}

// parseResponse enforces the endpoint contract: a JSON object with a
// non-null string `text` field. Anything else is a contract violation,
// which is distinct from a transport failure and never retried.
func parseResponse(body []byte) (Transcript, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Transcript{}, fault.New(fault.ContractViolation, "transcribe", "response is not a JSON object: %v", err)
	}

	textRaw, ok := raw["text"]
	if !ok {
		return Transcript{}, fault.New(fault.ContractViolation, "transcribe", "response is missing the text field")
	}

	var text *string
	if err := json.Unmarshal(textRaw, &text); err != nil {
		return Transcript{}, fault.New(fault.ContractViolation, "transcribe", "text field is not a string: %v", err)
	}
	if text == nil {
		return Transcript{}, fault.New(fault.ContractViolation, "transcribe", "text field is null")
	}

	delete(raw, "text")
	return Transcript{Text: *text, Raw: raw}, nil
}

func buildUpload(audioPath, language string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio artifact: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read audio artifact: %w", err)
	}
	if err := w.WriteField("language", language); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
