package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbright/rehearse/internal/aggregate"
	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/events"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/indicator"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/metrics"
	"github.com/rbright/rehearse/internal/persist"
	"github.com/rbright/rehearse/internal/pipeline"
	"github.com/rbright/rehearse/internal/session"
	"github.com/rbright/rehearse/internal/storage"
	"github.com/rbright/rehearse/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger zerolog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: 180 * time.Millisecond,
		Retries:      8,
		Logger:       logger.With().Str("component", "ipc").Logger(),
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a rehearse session is already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	final, err := serve(ctx, cfg, logger, listener)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed")
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if final.Phase == fsm.PhaseComplete {
		if final.SessionScore != nil {
			fmt.Fprintf(r.Stdout, "session complete: score %.1f\n", *final.SessionScore)
		} else {
			fmt.Fprintln(r.Stdout, "session complete: no answers were scored")
		}
	}
	return 0
}

// serve owns one session until it completes and is saved, or ctx ends.
// An interrupted session keeps its snapshot for the next serve.
func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger, listener net.Listener) (interview.State, error) {
	component := func(name string) zerolog.Logger {
		return logger.With().Str("component", name).Logger()
	}

	shutdownTracing, err := telemetry.Setup(ctx, "rehearse")
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()
	tracer := telemetry.Tracer()
	m := metrics.New()

	collab, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		return interview.State{}, err
	}
	defer func() { _ = collab.Close() }()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return interview.State{}, fmt.Errorf("open %s: %w", storage.Describe(cfg.Storage), err)
	}

	publisher := events.New(events.Config{
		Brokers:     cfg.Archive.KafkaBrokers,
		TopicPhase:  cfg.Archive.TopicPhase,
		TopicResult: cfg.Archive.TopicResult,
		Enabled:     len(cfg.Archive.KafkaBrokers) > 0,
	}, component("events"))
	defer func() { _ = publisher.Close() }()

	var archivers []persist.Archiver
	if cfg.Archive.Remote && collab.api != nil {
		archivers = append(archivers, collab.api)
	}
	if len(cfg.Archive.KafkaBrokers) > 0 {
		archivers = append(archivers, publisher)
	}
	bridge := persist.NewBridge(store, component("persist"), m, archivers...)
	defer func() { _ = bridge.Close() }()

	player := audio.NewPlayer()
	player.Command = cfg.Prompt.PlayerCmd.Argv

	cues := indicator.NewCues(indicator.CueConfig{
		Enable:       cfg.Audio.CueEnable,
		StartFile:    cfg.Audio.CueStartFile,
		StopFile:     cfg.Audio.CueStopFile,
		CompleteFile: cfg.Audio.CueCompleteFile,
		ErrorFile:    cfg.Audio.CueErrorFile,
	}, player, component("cues"))
	defer cues.Wait()

	hub := indicator.NewHub(component("hub"))
	defer hub.Close()

	var prompter session.Prompter
	if cfg.Prompt.Speak && collab.synthesizer != nil {
		prompter = audio.NewAnnouncer(collab.synthesizer, player, cfg.Prompt.Voice)
	}

	var audioDumpDir string
	if cfg.Debug.EnableAudioDump {
		if dir, err := config.StatePath(filepath.Join("debug", "audio")); err == nil {
			audioDumpDir = dir
		}
	}

	machine, err := session.New(session.Options{
		SessionID: cfg.Session.ID,
		Role:      cfg.Session.Role,
		Capture: audio.NewRecorder(audio.PulseSource{
			Input:    cfg.Audio.Input,
			Fallback: cfg.Audio.Fallback,
			Logger:   component("audio"),
		}, component("audio")),
		Pipeline: pipeline.New(pipeline.Options{
			Transcriber:  collab.transcriber,
			Analyzer:     collab.analyzer,
			Logger:       component("pipeline"),
			Metrics:      m,
			Tracer:       tracer,
			StageTimeout: time.Duration(cfg.Analysis.StageTimeoutMS) * time.Millisecond,
			AudioDumpDir: audioDumpDir,
		}),
		Summarizer: aggregate.New(
			collab.summarizer,
			component("aggregate"),
			tracer,
			time.Duration(cfg.Analysis.SummaryTimeoutMS)*time.Millisecond,
		),
		Persister: bridge,
		Notifier:  indicator.Multi{cues, hub, indicator.PhaseFunc(publisher.PhaseChanged)},
		Prompter:  prompter,
		Logger:    component("session"),
		Metrics:   m,
	})
	if err != nil {
		return interview.State{}, err
	}
	defer machine.Close()

	httpServer := startHTTP(cfg.HTTP.Listen, m, hub, component("http"))
	if httpServer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	saved := make(chan struct{}, 1)
	handler := ipc.HandlerFunc(func(ctx context.Context, req ipc.Request) ipc.Response {
		resp := machine.Handle(ctx, req)
		if req.Command == ipc.CommandRetrySave && resp.OK {
			select {
			case saved <- struct{}{}:
			default:
			}
		}
		return resp
	})

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	serverErrCh := make(chan error, 1)
	go func() {
		server := &ipc.Server{Handler: handler, Logger: component("ipc")}
		serverErrCh <- server.Serve(serverCtx, listener)
	}()

	if err := startSession(ctx, machine, bridge, collab.questions, cfg, logger); err != nil {
		serverCancel()
		<-serverErrCh
		return interview.State{}, err
	}

	done := waitForCompletion(ctx, machine, saved)
	serverCancel()
	serverErr := <-serverErrCh

	final := machine.State()
	if done {
		if err := bridge.Discard(context.Background(), cfg.Session.ID); err != nil {
			logger.Warn().Err(err).Msg("discard completed snapshot failed")
		}
		logger.Info().Msg("session complete")
	} else {
		logger.Info().Str("phase", string(final.Phase)).Msg("session suspended")
	}
	if serverErr != nil {
		return final, fmt.Errorf("ipc server failed: %w", serverErr)
	}
	return final, nil
}

// startSession resumes the stored session or begins a fresh one. Corrupt
// snapshots are reported and replaced; a completed session that was already
// saved is discarded so a new one can start.
func startSession(
	ctx context.Context,
	machine *session.Machine,
	bridge *persist.Bridge,
	source QuestionSource,
	cfg config.Config,
	logger zerolog.Logger,
) error {
	restored, err := bridge.Restore(ctx, cfg.Session.ID)
	switch {
	case err == nil && restored.Phase == fsm.PhaseComplete && restored.ArchivedAt != nil && restored.ArchiveError == "":
		if err := bridge.Discard(ctx, cfg.Session.ID); err != nil {
			return err
		}
	case err == nil:
		return machine.Resume(ctx, restored)
	case errors.Is(err, interview.ErrNoSnapshot):
	case errors.Is(err, interview.ErrCorruptSnapshot):
		logger.Warn().Err(err).Msg("stored session is unreadable; starting a new session")
	default:
		return err
	}

	prompts, err := fetchQuestions(ctx, source, cfg)
	if err != nil {
		return err
	}
	return machine.Begin(ctx, prompts)
}

// waitForCompletion reports whether the session finished and was saved
// before ctx ended. A failed save keeps waiting for a successful retry-save.
func waitForCompletion(ctx context.Context, machine *session.Machine, saved <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-machine.Done():
	}
	if machine.State().ArchiveError == "" {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-saved:
		return true
	}
}

func startHTTP(addr string, m *metrics.Metrics, hub *indicator.Hub, logger zerolog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/ws", hub)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Str("addr", addr).Msg("http listener stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("http listening")
	return srv
}
