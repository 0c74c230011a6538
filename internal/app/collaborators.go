package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbright/rehearse/internal/aggregate"
	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/gemini"
	"github.com/rbright/rehearse/internal/gspeech"
	"github.com/rbright/rehearse/internal/httpapi"
	"github.com/rbright/rehearse/internal/pipeline"
	"github.com/rbright/rehearse/internal/questionbank"
)

// QuestionSource produces the prompts for a new session.
type QuestionSource interface {
	Questions(ctx context.Context, role string, note string) ([]string, error)
}

// collaborators are the external services selected by config.
type collaborators struct {
	questions   QuestionSource
	transcriber pipeline.Transcriber
	analyzer    pipeline.Analyzer
	summarizer  aggregate.Summarizer
	synthesizer audio.Synthesizer
	api         *httpapi.Client
	closers     []func() error
}

func (c *collaborators) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

func usesAPI(cfg config.Config) bool {
	return cfg.Questions.Source == "api" ||
		cfg.Transcription.Backend == "api" ||
		cfg.Analysis.Backend == "api" ||
		cfg.Prompt.Speak ||
		cfg.Archive.Remote
}

func buildCollaborators(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*collaborators, error) {
	c := &collaborators{}
	component := func(name string) zerolog.Logger {
		return logger.With().Str("component", name).Logger()
	}

	if usesAPI(cfg) {
		api, err := httpapi.New(httpapi.Config{
			BaseURL:    cfg.API.BaseURL,
			HTTPClient: &http.Client{Timeout: time.Duration(cfg.API.TimeoutMS) * time.Millisecond},
			Logger:     component("httpapi"),
		})
		if err != nil {
			return nil, err
		}
		c.api = api
		c.synthesizer = api
	}

	var gem *gemini.Client
	if cfg.Questions.Source == "gemini" || cfg.Analysis.Backend == "gemini" {
		var err error
		gem, err = gemini.New(ctx, gemini.Config{
			APIKey:      cfg.Analysis.GeminiAPIKey,
			Model:       cfg.Analysis.GeminiModel,
			Temperature: float32(cfg.Analysis.Temperature),
			Logger:      component("gemini"),
		})
		if err != nil {
			return nil, err
		}
	}

	switch cfg.Questions.Source {
	case "gemini":
		c.questions = gem
	case "bank":
		bank, err := questionbank.Load(cfg.Questions.BankPath, cfg.Questions.Count)
		if err != nil {
			return nil, err
		}
		c.questions = bank
	default:
		c.questions = c.api
	}

	switch cfg.Analysis.Backend {
	case "gemini":
		c.analyzer = gem
		c.summarizer = gem
	default:
		c.analyzer = c.api
		c.summarizer = c.api
	}

	switch cfg.Transcription.Backend {
	case "google":
		transcriber, err := newSpeechTranscriber(ctx, cfg, component("gspeech"))
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.transcriber = transcriber
		c.closers = append(c.closers, transcriber.Close)
	default:
		c.transcriber = c.api
	}

	return c, nil
}

func newSpeechTranscriber(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*transcriberWithSink, error) {
	planned, warnings, err := config.BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logger.Warn().Msg(w.Message)
	}
	phrases := make([]gspeech.Phrase, 0, len(planned))
	for _, p := range planned {
		phrases = append(phrases, gspeech.Phrase{Phrase: p.Phrase, Boost: p.Boost})
	}

	out := &transcriberWithSink{}
	speechCfg := gspeech.Config{
		Endpoint:             cfg.Transcription.Endpoint,
		CredentialsFile:      cfg.Transcription.CredentialsFile,
		LanguageCode:         cfg.Transcription.LanguageCode,
		Model:                cfg.Transcription.Model,
		AutomaticPunctuation: cfg.Transcription.AutomaticPunctuation,
		CapitalizeSentences:  cfg.Transcription.CapitalizeSentences,
		Phrases:              phrases,
		Logger:               logger,
	}
	if cfg.Debug.EnableGRPCDump {
		path, err := config.StatePath(filepath.Join("debug", "speech-responses.jsonl"))
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create debug dir: %w", err)
		}
		sink, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open speech debug sink: %w", err)
		}
		speechCfg.DebugResponseSinkJSON = sink
		out.sink = sink
	}

	transcriber, err := gspeech.New(ctx, speechCfg)
	if err != nil {
		if out.sink != nil {
			_ = out.sink.Close()
		}
		return nil, err
	}
	out.Transcriber = transcriber
	logger.Debug().Int("phrase_count", len(phrases)).Msg("speech context plan")
	return out, nil
}

// transcriberWithSink closes the debug response sink along with the client.
type transcriberWithSink struct {
	*gspeech.Transcriber
	sink *os.File
}

func (t *transcriberWithSink) Close() error {
	err := t.Transcriber.Close()
	if t.sink != nil {
		err = errors.Join(err, t.sink.Close())
	}
	return err
}

// fetchQuestions asks source for prompts and caps them at count.
func fetchQuestions(ctx context.Context, source QuestionSource, cfg config.Config) ([]string, error) {
	if source == nil {
		return nil, errors.New("no question source configured")
	}
	prompts, err := source.Questions(ctx, cfg.Session.Role, cfg.Session.Note)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	if cfg.Questions.Count > 0 && len(prompts) > cfg.Questions.Count {
		prompts = prompts[:cfg.Questions.Count]
	}
	return prompts, nil
}
