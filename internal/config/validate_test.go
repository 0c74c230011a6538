package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSpeechPhrasesSortedAndHighestBoostWins(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Vocab.GlobalSets = []string{"core", "team"}
	cfg.Vocab.Sets["core"] = VocabSet{Name: "core", Boost: 10, Phrases: []string{"beta", "alpha"}}
	cfg.Vocab.Sets["team"] = VocabSet{Name: "team", Boost: 20, Phrases: []string{"alpha", "gamma"}}

	phrases, warnings, err := BuildSpeechPhrases(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, []SpeechPhrase{
		{Phrase: "alpha", Boost: 20},
		{Phrase: "beta", Boost: 10},
		{Phrase: "gamma", Boost: 20},
	}, phrases)
}

func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty session id", mutate: func(c *Config) { c.Session.ID = "" }, wantErr: "session.id"},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: "api.base_url"},
		{name: "bad base url scheme", mutate: func(c *Config) { c.API.BaseURL = "ftp://host" }, wantErr: "unsupported scheme"},
		{name: "unknown question source", mutate: func(c *Config) { c.Questions.Source = "llm" }, wantErr: "questions.source"},
		{name: "bank without path", mutate: func(c *Config) { c.Questions.Source = "bank" }, wantErr: "bank_path"},
		{name: "zero question count", mutate: func(c *Config) { c.Questions.Count = 0 }, wantErr: "questions.count"},
		{name: "unknown transcription backend", mutate: func(c *Config) { c.Transcription.Backend = "whisper" }, wantErr: "transcription.backend"},
		{name: "empty language", mutate: func(c *Config) { c.Transcription.LanguageCode = "" }, wantErr: "language_code"},
		{name: "unknown analysis backend", mutate: func(c *Config) { c.Analysis.Backend = "openai" }, wantErr: "analysis.backend"},
		{name: "temperature out of range", mutate: func(c *Config) { c.Analysis.Temperature = 3 }, wantErr: "temperature"},
		{name: "negative stage timeout", mutate: func(c *Config) { c.Analysis.StageTimeoutMS = -1 }, wantErr: "stage_timeout_ms"},
		{name: "player command raw but empty argv", mutate: func(c *Config) {
			c.Prompt.PlayerCmd = CommandConfig{Raw: "mpv"}
		}, wantErr: "player_cmd"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: "storage.dsn"},
		{name: "kafka without result topic", mutate: func(c *Config) {
			c.Archive.KafkaBrokers = []string{"localhost:9092"}
			c.Archive.TopicResult = ""
		}, wantErr: "topic_result"},
		{name: "invalid max phrases", mutate: func(c *Config) { c.Vocab.MaxPhrases = 0 }, wantErr: "vocab.max_phrases"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateSkipsBaseURLWhenAPIUnused(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.API.BaseURL = ""
	cfg.Questions.Source = "bank"
	cfg.Questions.BankPath = "questions.yaml"
	cfg.Transcription.Backend = "google"
	cfg.Analysis.Backend = "gemini"
	cfg.Analysis.GeminiAPIKey = "key"
	cfg.Prompt.Speak = false
	cfg.Archive.Remote = false

	_, err := Validate(cfg)
	require.NoError(t, err)
}

func TestValidateWarnsOnMissingGeminiKey(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Analysis.Backend = "gemini"

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "REHEARSE_GEMINI_API_KEY")
}

func TestValidateMissingVocabSetReference(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Vocab.GlobalSets = []string{"missing"}

	_, err := Validate(cfg)
	require.ErrorContains(t, err, "unknown set")
}

func TestValidateMaxPhraseLimit(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Vocab.MaxPhrases = 1
	cfg.Vocab.GlobalSets = []string{"team"}
	cfg.Vocab.Sets["team"] = VocabSet{Name: "team", Boost: 10, Phrases: []string{"one", "two"}}

	_, err := Validate(cfg)
	require.ErrorContains(t, err, "exceeds")
}
