package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Session       *jsoncSession       `json:"session"`
	API           *jsoncAPI           `json:"api"`
	Questions     *jsoncQuestions     `json:"questions"`
	Transcription *jsoncTranscription `json:"transcription"`
	Analysis      *jsoncAnalysis      `json:"analysis"`
	Prompt        *jsoncPrompt        `json:"prompt"`
	Audio         *jsoncAudio         `json:"audio"`
	Storage       *jsoncStorage       `json:"storage"`
	Archive       *jsoncArchive       `json:"archive"`
	HTTP          *jsoncHTTP          `json:"http"`
	Log           *jsoncLog           `json:"log"`
	Vocab         *jsoncVocab         `json:"vocab"`
	Debug         *jsoncDebug         `json:"debug"`
}

type jsoncSession struct {
	ID   *string `json:"id"`
	Role *string `json:"role"`
	Note *string `json:"note"`
}

type jsoncAPI struct {
	BaseURL   *string `json:"base_url"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type jsoncQuestions struct {
	Source   *string `json:"source"`
	Count    *int    `json:"count"`
	BankPath *string `json:"bank_path"`
}

type jsoncTranscription struct {
	Backend              *string `json:"backend"`
	Endpoint             *string `json:"endpoint"`
	CredentialsFile      *string `json:"credentials_file"`
	LanguageCode         *string `json:"language_code"`
	Model                *string `json:"model"`
	AutomaticPunctuation *bool   `json:"automatic_punctuation"`
	CapitalizeSentences  *bool   `json:"capitalize_sentences"`
}

type jsoncAnalysis struct {
	Backend          *string  `json:"backend"`
	GeminiAPIKey     *string  `json:"gemini_api_key"`
	GeminiModel      *string  `json:"gemini_model"`
	Temperature      *float64 `json:"temperature"`
	StageTimeoutMS   *int     `json:"stage_timeout_ms"`
	SummaryTimeoutMS *int     `json:"summary_timeout_ms"`
}

type jsoncPrompt struct {
	Speak     *bool   `json:"speak"`
	Voice     *string `json:"voice"`
	PlayerCmd *string `json:"player_cmd"`
}

type jsoncAudio struct {
	Input    *string    `json:"input"`
	Fallback *string    `json:"fallback"`
	Cues     *jsoncCues `json:"cues"`
}

type jsoncCues struct {
	Enable       *bool   `json:"enable"`
	StartFile    *string `json:"start_file"`
	StopFile     *string `json:"stop_file"`
	CompleteFile *string `json:"complete_file"`
	ErrorFile    *string `json:"error_file"`
}

type jsoncStorage struct {
	Driver *string `json:"driver"`
	DSN    *string `json:"dsn"`
}

type jsoncArchive struct {
	Remote       *bool            `json:"remote"`
	KafkaBrokers *jsoncStringList `json:"kafka_brokers"`
	TopicPhase   *string          `json:"topic_phase"`
	TopicResult  *string          `json:"topic_result"`
}

type jsoncHTTP struct {
	Listen *string `json:"listen"`
}

type jsoncLog struct {
	Level   *string `json:"level"`
	Console *bool   `json:"console"`
}

type jsoncVocab struct {
	Global     *jsoncStringList         `json:"global"`
	MaxPhrases *int                     `json:"max_phrases"`
	Sets       map[string]jsoncVocabSet `json:"sets"`
}

type jsoncVocabSet struct {
	Boost   *float64 `json:"boost"`
	Phrases []string `json:"phrases"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
	GRPCDump  *bool `json:"grpc_dump"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = trimList(strings.Split(single, ","))
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if s := payload.Session; s != nil {
		setString(&cfg.Session.ID, s.ID)
		setString(&cfg.Session.Role, s.Role)
		setString(&cfg.Session.Note, s.Note)
	}

	if a := payload.API; a != nil {
		setString(&cfg.API.BaseURL, a.BaseURL)
		setInt(&cfg.API.TimeoutMS, a.TimeoutMS)
	}

	if q := payload.Questions; q != nil {
		setString(&cfg.Questions.Source, q.Source)
		setInt(&cfg.Questions.Count, q.Count)
		setString(&cfg.Questions.BankPath, q.BankPath)
	}

	if t := payload.Transcription; t != nil {
		setString(&cfg.Transcription.Backend, t.Backend)
		setString(&cfg.Transcription.Endpoint, t.Endpoint)
		setString(&cfg.Transcription.CredentialsFile, t.CredentialsFile)
		setString(&cfg.Transcription.LanguageCode, t.LanguageCode)
		setString(&cfg.Transcription.Model, t.Model)
		setBool(&cfg.Transcription.AutomaticPunctuation, t.AutomaticPunctuation)
		setBool(&cfg.Transcription.CapitalizeSentences, t.CapitalizeSentences)
	}

	if a := payload.Analysis; a != nil {
		setString(&cfg.Analysis.Backend, a.Backend)
		setString(&cfg.Analysis.GeminiModel, a.GeminiModel)
		if a.GeminiAPIKey != nil {
			cfg.Analysis.GeminiAPIKey = strings.TrimSpace(*a.GeminiAPIKey)
			warnings = append(warnings, Warning{Message: "analysis.gemini_api_key in the config file; prefer REHEARSE_GEMINI_API_KEY"})
		}
		if a.Temperature != nil {
			cfg.Analysis.Temperature = *a.Temperature
		}
		setInt(&cfg.Analysis.StageTimeoutMS, a.StageTimeoutMS)
		setInt(&cfg.Analysis.SummaryTimeoutMS, a.SummaryTimeoutMS)
	}

	if p := payload.Prompt; p != nil {
		setBool(&cfg.Prompt.Speak, p.Speak)
		setString(&cfg.Prompt.Voice, p.Voice)
		if p.PlayerCmd != nil {
			command, err := ParsePlayerCommand(*p.PlayerCmd)
			if err != nil {
				return nil, fmt.Errorf("invalid prompt.player_cmd: %w", err)
			}
			cfg.Prompt.PlayerCmd = command
		}
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		if c := a.Cues; c != nil {
			setBool(&cfg.Audio.CueEnable, c.Enable)
			setString(&cfg.Audio.CueStartFile, c.StartFile)
			setString(&cfg.Audio.CueStopFile, c.StopFile)
			setString(&cfg.Audio.CueCompleteFile, c.CompleteFile)
			setString(&cfg.Audio.CueErrorFile, c.ErrorFile)
		}
	}

	if s := payload.Storage; s != nil {
		if s.Driver != nil {
			cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(*s.Driver))
		}
		setString(&cfg.Storage.DSN, s.DSN)
	}

	if a := payload.Archive; a != nil {
		setBool(&cfg.Archive.Remote, a.Remote)
		if a.KafkaBrokers != nil {
			cfg.Archive.KafkaBrokers = trimList(*a.KafkaBrokers)
		}
		setString(&cfg.Archive.TopicPhase, a.TopicPhase)
		setString(&cfg.Archive.TopicResult, a.TopicResult)
	}

	if payload.HTTP != nil {
		setString(&cfg.HTTP.Listen, payload.HTTP.Listen)
	}

	if l := payload.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
		setBool(&cfg.Log.Console, l.Console)
	}

	if payload.Vocab != nil {
		if payload.Vocab.Global != nil {
			cfg.Vocab.GlobalSets = trimList(*payload.Vocab.Global)
		}
		if payload.Vocab.MaxPhrases != nil {
			cfg.Vocab.MaxPhrases = *payload.Vocab.MaxPhrases
		}
		if payload.Vocab.Sets != nil {
			sets := make(map[string]VocabSet, len(cfg.Vocab.Sets)+len(payload.Vocab.Sets))
			for name, set := range cfg.Vocab.Sets {
				sets[name] = set
			}
			for name, set := range payload.Vocab.Sets {
				trimmedName := strings.TrimSpace(name)
				if trimmedName == "" {
					return nil, fmt.Errorf("vocab.sets contains an empty set name")
				}

				entry := VocabSet{Name: trimmedName, Phrases: append([]string(nil), set.Phrases...)}
				if set.Boost != nil {
					entry.Boost = *set.Boost
				}
				sets[trimmedName] = entry
			}
			cfg.Vocab.Sets = sets
		}
	}

	if payload.Debug != nil {
		setBool(&cfg.Debug.EnableAudioDump, payload.Debug.AudioDump)
		setBool(&cfg.Debug.EnableGRPCDump, payload.Debug.GRPCDump)
	}

	return warnings, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
