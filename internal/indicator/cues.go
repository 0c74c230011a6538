package indicator

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rs/zerolog"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
)

const (
	cueSampleRate = 16000
	cueTimeout    = 4 * time.Second
)

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	startCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	stopCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
	})
	completeCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1319, duration: 110 * time.Millisecond, volume: 0.18},
	})
	cancelCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.18},
	})
)

// CueConfig selects cue sounds. Empty file paths use built-in tones.
type CueConfig struct {
	Enable       bool
	StartFile    string
	StopFile     string
	CompleteFile string
	ErrorFile    string
}

type cuePlayer interface {
	PlaySamples(ctx context.Context, samples []int16, sampleRate int, media string) error
	PlayPayload(ctx context.Context, payload audio.Payload, media string) error
}

// Cues plays audio cues on recording start/stop, session completion and errors.
type Cues struct {
	cfg    CueConfig
	player cuePlayer
	logger zerolog.Logger

	mu   sync.Mutex
	last fsm.Phase
	wg   sync.WaitGroup
}

// NewCues builds a cue notifier. A nil player uses Pulse playback.
func NewCues(cfg CueConfig, player *audio.Player, logger zerolog.Logger) *Cues {
	c := &Cues{cfg: cfg, logger: logger}
	if player != nil {
		c.player = player
	} else {
		c.player = audio.NewPlayer()
	}
	return c
}

// PhaseChanged plays the cue for the phase edge, if any.
func (c *Cues) PhaseChanged(_ context.Context, state interview.State) {
	c.mu.Lock()
	prev := c.last
	c.last = state.Phase
	c.mu.Unlock()

	if prev == state.Phase {
		return
	}
	switch state.Phase {
	case fsm.PhaseRecording:
		c.play(cueStart)
	case fsm.PhaseProcessingAnswer:
		c.play(cueStop)
	case fsm.PhaseComplete:
		c.play(cueComplete)
	}
}

// ShowError plays the error cue.
func (c *Cues) ShowError(context.Context, string) {
	c.play(cueCancel)
}

// Wait blocks until queued cues finish.
func (c *Cues) Wait() {
	c.wg.Wait()
}

// play emits a cue asynchronously. The player serializes playback.
func (c *Cues) play(kind cueKind) {
	if !c.cfg.Enable {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
		defer cancel()
		if err := c.emit(ctx, kind); err != nil {
			c.logger.Debug().Err(err).Int("cue", int(kind)).Msg("audio cue failed")
		}
	}()
}

func (c *Cues) emit(ctx context.Context, kind cueKind) error {
	if path := c.cuePath(kind); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			payload := audio.Payload{Data: data, MIMEType: mimeForPath(path)}
			if err := c.player.PlayPayload(ctx, payload, "rehearse cue"); err == nil {
				return nil
			}
		}
	}
	return c.player.PlaySamples(ctx, cueSamples(kind), cueSampleRate, "rehearse cue")
}

func (c *Cues) cuePath(kind cueKind) string {
	var raw string
	switch kind {
	case cueStart:
		raw = c.cfg.StartFile
	case cueStop:
		raw = c.cfg.StopFile
	case cueComplete:
		raw = c.cfg.CompleteFile
	case cueCancel:
		raw = c.cfg.ErrorFile
	}
	return expandUserPath(raw)
}

func mimeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return audio.MIMETypeWAV
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}

func cueSamples(kind cueKind) []int16 {
	switch kind {
	case cueStart:
		return startCuePCM
	case cueStop:
		return stopCuePCM
	case cueComplete:
		return completeCuePCM
	case cueCancel:
		return cancelCuePCM
	default:
		return nil
	}
}

func synthesizeCue(parts []toneSpec) []int16 {
	gap := samplesForDuration(22 * time.Millisecond)
	var pcm []int16
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 {
			pcm = append(pcm, make([]int16, gap)...)
		}
	}
	return pcm
}

// synthesizeTone renders a sine tone with a short linear attack and release.
func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := min(max(n/10, 1), cueSampleRate/200)
	pcm := make([]int16, n)
	for i := range n {
		envelope := min(1.0, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		t := float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(2*math.Pi*spec.frequencyHz*t) * spec.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
