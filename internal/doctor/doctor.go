// Package doctor runs readiness diagnostics for config, audio, collaborators, and storage.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/httpapi"
	"github.com/rbright/rehearse/internal/storage"
	"github.com/segmentio/kafka-go"
)

const probeTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory is set", "XDG_RUNTIME_DIR is empty"))

	checks = append(checks, checkAudioSelection(ctx, cfg))

	if cfg.Prompt.Speak {
		if len(cfg.Prompt.PlayerCmd.Argv) > 0 {
			checks = append(checks, checkCommand(cfg.Prompt.PlayerCmd.Argv, "prompt.player_cmd"))
		} else {
			checks = append(checks, checkBinary("pw-play", "plays non-WAV prompt audio"))
		}
	}

	if usesAPI(cfg) {
		checks = append(checks, checkAPIReady(ctx, cfg))
	}
	if cfg.Questions.Source == "gemini" || cfg.Analysis.Backend == "gemini" {
		checks = append(checks, checkGeminiKey(cfg))
	}
	if cfg.Transcription.Backend == "google" {
		checks = append(checks, checkSpeechCredentials(cfg))
	}
	if cfg.Questions.Source == "bank" {
		checks = append(checks, checkFile("questions.bank_path", cfg.Questions.BankPath))
	}

	checks = append(checks, checkStorage(ctx, cfg))
	for _, broker := range cfg.Archive.KafkaBrokers {
		checks = append(checks, checkKafkaBroker(ctx, broker))
	}

	return Report{Checks: checks}
}

func usesAPI(cfg config.Config) bool {
	return cfg.Questions.Source == "api" || cfg.Transcription.Backend == "api" ||
		cfg.Analysis.Backend == "api" || cfg.Prompt.Speak || cfg.Archive.Remote
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkAPIReady probes the interview collaborator.
func checkAPIReady(ctx context.Context, cfg config.Config) Check {
	client, err := httpapi.New(httpapi.Config{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: &http.Client{Timeout: probeTimeout},
	})
	if err != nil {
		return Check{Name: "api.ready", Pass: false, Message: err.Error()}
	}
	if err := client.Ping(ctx); err != nil {
		return Check{Name: "api.ready", Pass: false, Message: err.Error()}
	}
	return Check{Name: "api.ready", Pass: true, Message: fmt.Sprintf("reachable at %s", cfg.API.BaseURL)}
}

func checkGeminiKey(cfg config.Config) Check {
	if strings.TrimSpace(cfg.Analysis.GeminiAPIKey) == "" {
		return Check{Name: "gemini.key", Pass: false, Message: "REHEARSE_GEMINI_API_KEY is not set"}
	}
	return Check{Name: "gemini.key", Pass: true, Message: fmt.Sprintf("model %s", cfg.Analysis.GeminiModel)}
}

func checkSpeechCredentials(cfg config.Config) Check {
	if cfg.Transcription.Endpoint != "" {
		return Check{Name: "speech.credentials", Pass: true, Message: fmt.Sprintf("custom endpoint %s", cfg.Transcription.Endpoint)}
	}
	path := cfg.Transcription.CredentialsFile
	if path == "" {
		path = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if path == "" {
		return Check{Name: "speech.credentials", Pass: false, Message: "no credentials_file or GOOGLE_APPLICATION_CREDENTIALS"}
	}
	return checkFile("speech.credentials", path)
}

func checkFile(name string, path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if info.IsDir() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is a directory", path)}
	}
	return Check{Name: name, Pass: true, Message: path}
}

// checkStorage opens the configured store, applying migrations.
func checkStorage(ctx context.Context, cfg config.Config) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return Check{Name: "storage", Pass: false, Message: err.Error()}
	}
	_ = store.Close()
	return Check{Name: "storage", Pass: true, Message: storage.Describe(cfg.Storage)}
}

func checkKafkaBroker(ctx context.Context, broker string) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return Check{Name: "kafka " + broker, Pass: false, Message: err.Error()}
	}
	_ = conn.Close()
	return Check{Name: "kafka " + broker, Pass: true, Message: "reachable"}
}
