package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
// Every violated invariant is reported in the returned error.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.Session.ID) == "" {
		fail("session.id must not be empty")
	}

	needsAPI := cfg.Questions.Source == "api" || cfg.Transcription.Backend == "api" ||
		cfg.Analysis.Backend == "api" || cfg.Prompt.Speak || cfg.Archive.Remote
	if needsAPI {
		if err := validateBaseURL(cfg.API.BaseURL); err != nil {
			fail("api.base_url: %v", err)
		}
	}
	if cfg.API.TimeoutMS < 0 {
		fail("api.timeout_ms must be >= 0")
	}

	switch cfg.Questions.Source {
	case "api", "gemini":
	case "bank":
		if strings.TrimSpace(cfg.Questions.BankPath) == "" {
			fail("questions.bank_path must not be empty when questions.source=bank")
		}
	default:
		fail("questions.source must be one of: api, gemini, bank")
	}
	if cfg.Questions.Count <= 0 {
		fail("questions.count must be > 0")
	}

	switch cfg.Transcription.Backend {
	case "api", "google":
	default:
		fail("transcription.backend must be one of: api, google")
	}
	if strings.TrimSpace(cfg.Transcription.LanguageCode) == "" {
		fail("transcription.language_code must not be empty")
	}

	switch cfg.Analysis.Backend {
	case "api", "gemini":
	default:
		fail("analysis.backend must be one of: api, gemini")
	}
	if cfg.Analysis.Temperature < 0 || cfg.Analysis.Temperature > 2 {
		fail("analysis.temperature must be within [0, 2]")
	}
	if cfg.Analysis.StageTimeoutMS < 0 {
		fail("analysis.stage_timeout_ms must be >= 0")
	}
	if cfg.Analysis.SummaryTimeoutMS < 0 {
		fail("analysis.summary_timeout_ms must be >= 0")
	}
	if cfg.Questions.Source == "gemini" || cfg.Analysis.Backend == "gemini" {
		if strings.TrimSpace(cfg.Analysis.GeminiModel) == "" {
			fail("analysis.gemini_model must not be empty when gemini is selected")
		}
		if strings.TrimSpace(cfg.Analysis.GeminiAPIKey) == "" {
			warnings = append(warnings, Warning{Message: "gemini selected but REHEARSE_GEMINI_API_KEY is not set"})
		}
	}

	if cfg.Prompt.PlayerCmd.Raw != "" && len(cfg.Prompt.PlayerCmd.Argv) == 0 {
		fail("prompt.player_cmd is configured but empty")
	}

	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			fail("storage.dsn must not be empty when storage.driver=postgres")
		}
	default:
		fail("storage.driver must be one of: sqlite, postgres, memory")
	}
	if cfg.Storage.Driver == "memory" {
		warnings = append(warnings, Warning{Message: "storage.driver=memory; sessions do not survive a restart"})
	}

	if len(cfg.Archive.KafkaBrokers) > 0 && strings.TrimSpace(cfg.Archive.TopicResult) == "" {
		fail("archive.topic_result must not be empty when archive.kafka_brokers is set")
	}

	if cfg.Vocab.MaxPhrases <= 0 {
		fail("vocab.max_phrases must be > 0")
	}
	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		problems = append(problems, err)
	}
	warnings = append(warnings, vocabWarnings...)

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return warnings, nil
}

func validateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic ASR phrase payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Phrase == phrases[j].Phrase {
			return phrases[i].Boost < phrases[j].Boost
		}
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}
