package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Session: SessionConfig{ID: "default"},
		API: APIConfig{
			BaseURL:   "http://127.0.0.1:5000",
			TimeoutMS: 60000,
		},
		Questions: QuestionsConfig{
			Source: "api",
			Count:  5,
		},
		Transcription: TranscriptionConfig{
			Backend:              "api",
			LanguageCode:         "en-US",
			AutomaticPunctuation: true,
			CapitalizeSentences:  true,
		},
		Analysis: AnalysisConfig{
			Backend:          "api",
			GeminiModel:      "gemini-2.5-flash",
			Temperature:      0.2,
			StageTimeoutMS:   90000,
			SummaryTimeoutMS: 120000,
		},
		Prompt: PromptConfig{
			Speak: true,
			Voice: "en_woman_1",
		},
		Audio: AudioConfig{
			Input:     "default",
			Fallback:  "default",
			CueEnable: true,
		},
		Storage: StorageConfig{Driver: "sqlite"},
		Archive: ArchiveConfig{
			Remote:      true,
			TopicPhase:  "rehearse.session.phase",
			TopicResult: "rehearse.session.completed",
		},
		HTTP: HTTPConfig{Listen: "127.0.0.1:7788"},
		Log:  LogConfig{Level: "info"},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Debug: DebugConfig{},
	}
}
