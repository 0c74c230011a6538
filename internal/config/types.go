// Package config resolves, parses, validates, and defaults rehearse configuration.
package config

// Config is the fully materialized runtime configuration used by rehearse.
type Config struct {
	Session       SessionConfig
	API           APIConfig
	Questions     QuestionsConfig
	Transcription TranscriptionConfig
	Analysis      AnalysisConfig
	Prompt        PromptConfig
	Audio         AudioConfig
	Storage       StorageConfig
	Archive       ArchiveConfig
	HTTP          HTTPConfig
	Log           LogConfig
	Vocab         VocabConfig
	Debug         DebugConfig
}

// SessionConfig names the practice session and the role being rehearsed.
type SessionConfig struct {
	ID   string
	Role string
	Note string
}

// APIConfig points at the interview backend collaborator.
type APIConfig struct {
	BaseURL   string
	TimeoutMS int
}

// QuestionsConfig selects where questions come from.
type QuestionsConfig struct {
	Source   string // api, gemini, bank
	Count    int
	BankPath string
}

// TranscriptionConfig selects and tunes the speech-to-text backend.
type TranscriptionConfig struct {
	Backend              string // api, google
	Endpoint             string
	CredentialsFile      string
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	CapitalizeSentences  bool
}

// AnalysisConfig selects the answer analysis and summary backend.
type AnalysisConfig struct {
	Backend          string // api, gemini
	GeminiAPIKey     string
	GeminiModel      string
	Temperature      float64
	StageTimeoutMS   int
	SummaryTimeoutMS int
}

// PromptConfig controls spoken question prompts.
type PromptConfig struct {
	Speak     bool
	Voice     string
	PlayerCmd CommandConfig
}

// AudioConfig controls input-source selection and audio cues.
type AudioConfig struct {
	Input           string
	Fallback        string
	CueEnable       bool
	CueStartFile    string
	CueStopFile     string
	CueCompleteFile string
	CueErrorFile    string
}

// StorageConfig selects the snapshot and history store.
type StorageConfig struct {
	Driver string // sqlite, postgres, memory
	DSN    string
}

// ArchiveConfig controls secondary destinations for completed sessions.
type ArchiveConfig struct {
	Remote       bool
	KafkaBrokers []string
	TopicPhase   string
	TopicResult  string
}

// HTTPConfig controls the local metrics and live-update listener.
type HTTPConfig struct {
	Listen string
}

// LogConfig controls runtime logging.
type LogConfig struct {
	Level   string
	Console bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// VocabConfig controls enabled speech phrase sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
	EnableGRPCDump  bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// SpeechPhrase is the normalized phrase payload sent to ASR adapters.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
