// Package gemini implements the question, analysis and summary collaborators on Gemini.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/modeltext"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// Config configures a Client.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      zerolog.Logger
}

type generator interface {
	Generate(ctx context.Context, system string, prompt string) (string, error)
}

type modelGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

func (g modelGenerator) Generate(ctx context.Context, system string, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Client generates questions, analyses and summaries with a Gemini model.
type Client struct {
	gen    generator
	logger zerolog.Logger
}

// New builds a Client on the Gemini API backend.
func New(ctx context.Context, cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("gemini api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{
		gen:    modelGenerator{client: client, model: model, temperature: cfg.Temperature},
		logger: cfg.Logger,
	}, nil
}

// Questions generates prompts for role.
func (c *Client) Questions(ctx context.Context, role string, note string) ([]string, error) {
	reply, err := c.gen.Generate(ctx, questionSystem, questionPrompt(role, note))
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	prompts := modeltext.ParseQuestions(reply)
	if len(prompts) == 0 {
		c.logger.Debug().Str("reply", reply).Msg("unparseable question reply")
		return nil, fmt.Errorf("generate questions: %w", interview.ErrNoQuestions)
	}
	return prompts, nil
}

// Analyze scores one answer.
func (c *Client) Analyze(ctx context.Context, question string, response string) (interview.Analysis, error) {
	reply, err := c.gen.Generate(ctx, analysisSystem, analysisPrompt(question, response))
	if err != nil {
		return interview.Analysis{}, fmt.Errorf("analyze answer: %w", err)
	}
	analysis := modeltext.ParseAnalysis(reply)
	if analysis.Content == "" && analysis.Delivery == "" && analysis.Score == nil {
		return interview.Analysis{}, errors.New("analyze answer: reply carried no analysis fields")
	}
	return analysis, nil
}

// Summarize produces overall feedback.
func (c *Client) Summarize(ctx context.Context, items []interview.SummaryItem) (interview.OverallSummary, error) {
	reply, err := c.gen.Generate(ctx, summarySystem, summaryPrompt(items))
	if err != nil {
		return interview.OverallSummary{}, fmt.Errorf("summarize interview: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return interview.OverallSummary{}, errors.New("summarize interview: empty reply")
	}
	return modeltext.ParseSummary(reply), nil
}
