// Package httpapi talks to the interview collaborator service over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/modeltext"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 60 * time.Second
	errorBodyLimit = 4096
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client implements the question, speech, analysis, summary and save collaborators.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger zerolog.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url must use http or https, got %q", raw)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: base, http: client, logger: cfg.Logger}, nil
}

// Name identifies the client as an archive destination.
func (c *Client) Name() string { return "api" }

// Questions requests a question list for role.
func (c *Client) Questions(ctx context.Context, role string, note string) ([]string, error) {
	body := map[string]string{"role": strings.TrimSpace(role)}
	if n := strings.TrimSpace(note); n != "" {
		body["additional_note"] = n
	}

	var payload struct {
		Questions []struct {
			Question string `json:"question"`
		} `json:"questions"`
		Error string `json:"error"`
	}
	if err := c.postJSON(ctx, "/generate_questions", body, &payload); err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("generate questions: %s", payload.Error)
	}

	prompts := make([]string, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		prompts = append(prompts, q.Question)
	}
	prompts = modeltext.CleanQuestionList(prompts)
	if len(prompts) == 0 {
		return nil, fmt.Errorf("generate questions: %w", interview.ErrNoQuestions)
	}
	return prompts, nil
}

// Synthesize returns spoken audio for text.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) (audio.Payload, error) {
	raw, err := json.Marshal(map[string]string{"text": text, "voice": voice})
	if err != nil {
		return audio.Payload{}, fmt.Errorf("marshal tts request: %w", err)
	}
	res, err := c.do(ctx, http.MethodPost, "/tts", "application/json", bytes.NewReader(raw))
	if err != nil {
		return audio.Payload{}, fmt.Errorf("tts: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return audio.Payload{}, fmt.Errorf("read tts audio: %w", err)
	}
	mime := res.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "audio/") {
		return audio.Payload{}, fmt.Errorf("tts returned content type %q", mime)
	}
	return audio.Payload{Data: data, MIMEType: mime}, nil
}

// Transcribe uploads one answer recording.
func (c *Client) Transcribe(ctx context.Context, payload audio.Payload) (string, error) {
	mimeType := payload.MIMEType
	if mimeType == "" {
		mimeType = audio.MIMETypeWAV
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="answer%s"`, audio.ExtensionFor(mimeType)))
	header.Set("Content-Type", mimeType)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	res, err := c.do(ctx, http.MethodPost, "/upload_answer", form.FormDataContentType(), &buf)
	if err != nil {
		return "", fmt.Errorf("upload answer: %w", err)
	}
	defer res.Body.Close()

	var out struct {
		Transcript string `json:"transcript"`
		Error      string `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("upload answer: %s", out.Error)
	}
	return out.Transcript, nil
}

// Analyze scores one answer. Replies carrying raw model text are parsed leniently.
func (c *Client) Analyze(ctx context.Context, question string, response string) (interview.Analysis, error) {
	var out struct {
		Content  *string         `json:"analysis_content"`
		Delivery *string         `json:"analysis_delivery"`
		Score    json.RawMessage `json:"score"`
		Text     string          `json:"text"`
		Error    string          `json:"error"`
	}
	body := map[string]string{"question": question, "response": response}
	if err := c.postJSON(ctx, "/analyze_question", body, &out); err != nil {
		return interview.Analysis{}, fmt.Errorf("analyze answer: %w", err)
	}
	if out.Error != "" {
		return interview.Analysis{}, fmt.Errorf("analyze answer: %s", out.Error)
	}
	if out.Content == nil && out.Text != "" {
		return modeltext.ParseAnalysis(out.Text), nil
	}

	analysis := interview.Analysis{}
	if out.Content != nil {
		analysis.Content = *out.Content
	}
	if out.Delivery != nil {
		analysis.Delivery = *out.Delivery
	}
	var score *float64
	if len(out.Score) > 0 {
		if err := json.Unmarshal(out.Score, &score); err != nil {
			return interview.Analysis{}, fmt.Errorf("decode analysis score: %w", err)
		}
	}
	analysis.Score = score
	return analysis, nil
}

// Summarize requests overall feedback for every question.
func (c *Client) Summarize(ctx context.Context, items []interview.SummaryItem) (interview.OverallSummary, error) {
	var out struct {
		OverallSummary json.RawMessage `json:"overall_summary"`
		Error          string          `json:"error"`
	}
	body := map[string]any{"questions": items}
	if err := c.postJSON(ctx, "/summarize_interview", body, &out); err != nil {
		return interview.OverallSummary{}, fmt.Errorf("summarize interview: %w", err)
	}
	if out.Error != "" {
		return interview.OverallSummary{}, fmt.Errorf("summarize interview: %s", out.Error)
	}
	if len(out.OverallSummary) == 0 {
		return interview.OverallSummary{}, fmt.Errorf("summarize interview: response missing overall_summary")
	}

	var text string
	if err := json.Unmarshal(out.OverallSummary, &text); err == nil {
		return modeltext.ParseSummary(text), nil
	}
	return modeltext.ParseSummary(string(out.OverallSummary)), nil
}

// Archive saves a completed session remotely.
func (c *Client) Archive(ctx context.Context, entry interview.HistoryEntry) error {
	body := map[string]any{
		"questions":       entry.Questions,
		"overall_summary": entry.Summary,
	}
	var out struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.postJSON(ctx, "/save_session", body, &out); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if out.Status != "success" {
		reason := out.Error
		if reason == "" {
			reason = fmt.Sprintf("status %q", out.Status)
		}
		return fmt.Errorf("save session: %s", reason)
	}
	return nil
}

// RemoteSession is one session from the collaborator's history.
type RemoteSession struct {
	Timestamp      string                  `json:"timestamp"`
	TotalScore     float64                 `json:"total_score"`
	Questions      []interview.SummaryItem `json:"questions"`
	OverallSummary json.RawMessage         `json:"overall_summary,omitempty"`
}

// History lists remotely saved sessions.
func (c *Client) History(ctx context.Context) ([]RemoteSession, error) {
	res, err := c.do(ctx, http.MethodGet, "/session_history", "", nil)
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}

	var sessions []RemoteSession
	if err := json.Unmarshal(raw, &sessions); err == nil {
		return sessions, nil
	}
	var wrapped struct {
		Sessions []RemoteSession `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode session history: %w", err)
	}
	return wrapped.Sessions, nil
}

// Ping checks that the collaborator answers HTTP.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodGet, "/session_history", "", nil)
	if err != nil {
		return err
	}
	return res.Body.Close()
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	res, err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends a request and turns non-2xx statuses into errors, preferring the
// service's {"error": ...} text when present.
func (c *Client) do(ctx context.Context, method string, path string, contentType string, body io.Reader) (*http.Response, error) {
	endpoint := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("collaborator request")

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(res.Body, errorBodyLimit))
		if err != nil {
			return nil, fmt.Errorf("read error body: %w", err)
		}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			return nil, fmt.Errorf("status %d: %s", res.StatusCode, payload.Error)
		}
		return nil, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return res, nil
}
