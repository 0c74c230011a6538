package doctor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/rehearse/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	t.Parallel()

	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	t.Parallel()

	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.HasPrefix(v, "/run") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	t.Parallel()

	check := checkCommand(nil, "prompt.player_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	t.Parallel()

	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	t.Parallel()

	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-bin")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-bin", "--arg"}, "prompt.player_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "prompt.player_cmd command is available")
}

func TestCheckAPIReadySuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/session_history", r.URL.Path)
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.API.BaseURL = server.URL

	check := checkAPIReady(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "reachable at")
}

func TestCheckAPIReadyFailureStatusCode(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.API.BaseURL = server.URL

	check := checkAPIReady(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "503")
}

func TestCheckAPIReadyRejectsBadURL(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.API.BaseURL = "ftp://example.com"

	check := checkAPIReady(context.Background(), cfg)
	require.False(t, check.Pass)
}

func TestCheckGeminiKey(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.False(t, checkGeminiKey(cfg).Pass)

	cfg.Analysis.GeminiAPIKey = "key"
	check := checkGeminiKey(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, cfg.Analysis.GeminiModel)
}

func TestCheckSpeechCredentials(t *testing.T) {
	creds := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(creds, []byte("{}"), 0o600))
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	cfg := config.Default()
	require.False(t, checkSpeechCredentials(cfg).Pass)

	cfg.Transcription.CredentialsFile = creds
	require.True(t, checkSpeechCredentials(cfg).Pass)

	cfg.Transcription.CredentialsFile = filepath.Dir(creds)
	require.False(t, checkSpeechCredentials(cfg).Pass)

	cfg.Transcription.CredentialsFile = ""
	cfg.Transcription.Endpoint = "localhost:8085"
	require.True(t, checkSpeechCredentials(cfg).Pass)
}

func TestCheckStorageSQLite(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "rehearse.db")

	check := checkStorage(context.Background(), cfg)
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "sqlite")
}

func TestCheckKafkaBrokerUnreachable(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	check := checkKafkaBroker(context.Background(), addr)
	require.False(t, check.Pass)
	require.Equal(t, "kafka "+addr, check.Name)
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestRunUsesPlayerCmdOverrideCheck(t *testing.T) {
	binDir := t.TempDir()
	fakePlayer := filepath.Join(binDir, "fake-player")
	require.NoError(t, os.WriteFile(fakePlayer, []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.API.BaseURL = server.URL
	cfg.Prompt.PlayerCmd = config.CommandConfig{Raw: fakePlayer, Argv: []string{"fake-player"}}
	cfg.Storage.Driver = "memory"

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg, Exists: true})
	require.NotEmpty(t, report.Checks)

	byName := map[string]Check{}
	for _, check := range report.Checks {
		byName[check.Name] = check
	}
	require.True(t, byName["fake-player"].Pass)
	require.NotContains(t, byName, "pw-play")
	require.True(t, byName["api.ready"].Pass)
	require.True(t, byName["storage"].Pass)
	require.False(t, byName["audio.device"].Pass)
	require.NotContains(t, byName, "gemini.key")
}

func TestRunChecksSelectedBackends(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	cfg := config.Default()
	cfg.Prompt.Speak = false
	cfg.Archive.Remote = false
	cfg.Questions.Source = "bank"
	cfg.Questions.BankPath = filepath.Join(t.TempDir(), "missing.yaml")
	cfg.Transcription.Backend = "google"
	cfg.Transcription.Endpoint = "localhost:8085"
	cfg.Analysis.Backend = "gemini"
	cfg.Storage.Driver = "memory"

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})

	byName := map[string]Check{}
	for _, check := range report.Checks {
		byName[check.Name] = check
	}
	require.Contains(t, byName["config"].Message, "using defaults")
	require.NotContains(t, byName, "api.ready")
	require.NotContains(t, byName, "pw-play")
	require.False(t, byName["gemini.key"].Pass)
	require.True(t, byName["speech.credentials"].Pass)
	require.False(t, byName["questions.bank_path"].Pass)
	require.False(t, report.OK())
}
