// Package analyze turns a transcript into structured sermon analysis by
// calling a chat-completions style endpoint that returns JSON.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulpitlabs/sermonpipe/internal/fault"
	"github.com/pulpitlabs/sermonpipe/internal/transcribe"
)

// ScriptureReference is one cited passage with its verse text and context.
type ScriptureReference struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
	Context   string `json:"context"`
}

// Result is the provider-defined analysis shape for one transcript.
type Result struct {
	Title               string               `json:"title"`
	Summary             string               `json:"summary"`
	SermonNotes         []string             `json:"sermon_notes"`
	ScriptureReferences []ScriptureReference `json:"scripture_references"`
	Tags                []string             `json:"tags"`
}

// Analyzer is a network client for the analysis endpoint.
type Analyzer struct {
	URL        string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *zap.Logger

	// MaxChars caps a single request; longer transcripts are split at
	// sentence boundaries and the per-chunk results reassembled in order.
	MaxChars int
}

// NewAnalyzer builds an analyzer with a mandatory request timeout.
func NewAnalyzer(url, apiKey, model string, timeout time.Duration, maxChars int, logger *zap.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 15000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		URL:        url,
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
		MaxChars:   maxChars,
	}
}

// Analyze submits the transcript, chunking when it exceeds MaxChars, and
// returns the reassembled analysis.
func (a *Analyzer) Analyze(ctx context.Context, transcript transcribe.Transcript) (Result, error) {
	if a.URL == "" {
		return Result{}, fault.New(fault.Resource, "analyze", "analysis endpoint is not configured")
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return Result{}, fault.New(fault.InvalidArgument, "analyze", "transcript text is empty")
	}

	chunks := SplitChunks(transcript.Text, a.MaxChars)
	a.Logger.Debug("analyzing transcript", zap.Int("chars", len(transcript.Text)), zap.Int("chunks", len(chunks)))

	var merged Result
	for i, chunk := range chunks {
		partial, err := a.analyzeChunk(ctx, chunk)
		if err != nil {
			return Result{}, err
		}
		merged = mergeResults(merged, partial, i == 0)
	}

	return merged, nil
}

func (a *Analyzer) analyzeChunk(ctx context.Context, chunk string) (Result, error) {
	payload := map[string]any{
		"model": a.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(chunk)},
		},
		"temperature":     0.7,
		"max_tokens":      4000,
		"response_format": map[string]string{"type": "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fault.Wrap(fault.Processing, "analyze", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fault.Wrap(fault.Upstream, "analyze", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fault.Wrap(fault.Upstream, "analyze", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fault.Wrap(fault.Upstream, "analyze", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fault.New(fault.Upstream, "analyze", "status %d: %s", resp.StatusCode, firstN(respBody, 200))
	}

	return parseCompletion(respBody)
}

// parseCompletion validates the chat-completions envelope and the JSON
// analysis inside it. Shape violations are contract violations.
func parseCompletion(body []byte) (Result, error) {
	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Result{}, fault.New(fault.ContractViolation, "analyze", "response is not valid JSON: %v", err)
	}
	if len(envelope.Choices) == 0 {
		return Result{}, fault.New(fault.ContractViolation, "analyze", "response has no choices")
	}

	content := envelope.Choices[0].Message.Content
	// Some models wrap the JSON in prose or fences; take the outermost object.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Result{}, fault.New(fault.ContractViolation, "analyze", "completion contains no JSON object")
	}

	var result Result
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return Result{}, fault.New(fault.ContractViolation, "analyze", "completion JSON does not match the analysis schema: %v", err)
	}
	return result, nil
}

// mergeResults reassembles per-chunk results deterministically: the first
// chunk leads title and summary ordering, lists append in chunk order,
// tags deduplicate keeping first occurrence.
func mergeResults(acc, partial Result, first bool) Result {
	if first {
		return partial
	}

	if partial.Summary != "" {
		acc.Summary = strings.TrimSpace(acc.Summary + " " + partial.Summary)
	}
	acc.SermonNotes = append(acc.SermonNotes, partial.SermonNotes...)
	acc.ScriptureReferences = append(acc.ScriptureReferences, partial.ScriptureReferences...)

	seen := make(map[string]struct{}, len(acc.Tags))
	for _, tag := range acc.Tags {
		seen[tag] = struct{}{}
	}
	for _, tag := range partial.Tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		acc.Tags = append(acc.Tags, tag)
	}

	return acc
}

const systemPrompt = "You are a helpful assistant that analyzes Christian sermons. Always respond with valid JSON."

func buildPrompt(transcript string) string {
	return fmt.Sprintf(`You are an assistant that analyzes Christian sermon transcripts and produces a structured JSON object.

Return ONLY valid JSON (no Markdown code fences, no extra text) with these keys:

- "title": A concise, meaningful title (string)
- "summary": A brief 2-3 sentence summary (string)
- "sermon_notes": A list of 5-10 key sermon points (array of strings)
- "scripture_references": A list of 3-5 Bible verses. Each item is an object with:
    - "reference" (e.g., "John 3:16")
    - "text" (exact verse text)
    - "context" (1-2 sentence explanation)
- "tags": A list of 3-8 relevant tags, all lowercase and hyphenated

Now analyze this sermon transcription and return JSON in that format:

%s`, transcript)
}

func firstN(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
