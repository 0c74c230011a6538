package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/cli"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/httpapi"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/persist"
	"github.com/rbright/rehearse/internal/storage"
)

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	line := resp.Message
	if line == "" {
		line = resp.State
	}
	if line == "" {
		line = "idle"
	}
	fmt.Fprintln(r.Stdout, line)

	if s := resp.Session; s != nil {
		if s.SessionScore != nil {
			fmt.Fprintf(r.Stdout, "score: %.1f\n", *s.SessionScore)
		}
		if s.ArchiveError != "" {
			fmt.Fprintf(r.Stdout, "save failed: %s (run: rehearse retry-save)\n", s.ArchiveError)
		}
	}
	return 0
}

func (r Runner) commandHistory(ctx context.Context, cfg config.Config, parsed cli.Parsed, logger zerolog.Logger) int {
	if parsed.Remote {
		client, err := httpapi.New(httpapi.Config{
			BaseURL:    cfg.API.BaseURL,
			HTTPClient: &http.Client{Timeout: time.Duration(cfg.API.TimeoutMS) * time.Millisecond},
			Logger:     logger.With().Str("component", "httpapi").Logger(),
		})
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		sessions, err := client.History(ctx)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if parsed.Limit > 0 && len(sessions) > parsed.Limit {
			sessions = sessions[:parsed.Limit]
		}
		writeRemoteHistory(r.Stdout, sessions)
		return 0
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: open %s: %v\n", storage.Describe(cfg.Storage), err)
		return 1
	}
	bridge := persist.NewBridge(store, logger.With().Str("component", "persist").Logger(), nil)
	defer func() { _ = bridge.Close() }()

	entries, err := bridge.History(ctx, parsed.Limit)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	writeHistory(r.Stdout, entries)
	return 0
}

// writeHistory prints entries newest first with the change against the
// previous scored session.
func writeHistory(w io.Writer, entries []interview.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no completed sessions")
		return
	}
	for i, entry := range entries {
		score := "no score"
		if entry.Score != nil {
			score = fmt.Sprintf("score %5.1f", *entry.Score)
		}
		line := fmt.Sprintf("%s  %s  %d questions",
			entry.Date.Local().Format("2006-01-02 15:04"),
			score,
			len(entry.Questions),
		)
		if prev := previousScore(entries[i+1:]); entry.Score != nil && prev != nil {
			line += fmt.Sprintf("  trend %+.1f", *entry.Score-*prev)
		}
		fmt.Fprintln(w, line)
	}
}

func previousScore(older []interview.HistoryEntry) *float64 {
	for _, entry := range older {
		if entry.Score != nil {
			return entry.Score
		}
	}
	return nil
}

func writeRemoteHistory(w io.Writer, sessions []httpapi.RemoteSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no completed sessions")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  score %5.1f  %d questions\n", s.Timestamp, s.TotalScore, len(s.Questions))
	}
}

func (r Runner) commandReset(ctx context.Context, cfg config.Config, logger zerolog.Logger) int {
	if socketPath, err := ipc.RuntimeSocketPath(); err == nil {
		if alive, _ := ipc.Probe(ctx, socketPath, forwardTimeout); alive {
			fmt.Fprintln(r.Stderr, "error: a rehearse session is running; stop it before reset")
			return 1
		}
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: open %s: %v\n", storage.Describe(cfg.Storage), err)
		return 1
	}
	bridge := persist.NewBridge(store, logger.With().Str("component", "persist").Logger(), nil)
	defer func() { _ = bridge.Close() }()

	if err := bridge.Discard(ctx, cfg.Session.ID); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "session %q reset\n", cfg.Session.ID)
	return 0
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}
