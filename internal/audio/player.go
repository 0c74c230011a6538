package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
)

// Player serializes local playback of cues and spoken prompts.
type Player struct {
	// Command plays non-WAV payloads. The file path replaces a {file}
	// argument or is appended. Defaults to pw-play.
	Command []string

	mu sync.Mutex
}

// NewPlayer returns a playback helper.
func NewPlayer() *Player {
	return &Player{}
}

// PlaySamples plays mono PCM16 samples through Pulse until done or ctx ends.
func (p *Player) PlaySamples(ctx context.Context, samples []int16, sampleRate int, media string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	client, err := newPulseClient()
	if err != nil {
		return err
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(media),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play %s: %w", media, err)
	}
	return ctx.Err()
}

// PlayPayload plays a WAV payload directly and anything else through pw-play.
func (p *Player) PlayPayload(ctx context.Context, payload Payload, media string) error {
	if payload.Empty() {
		return nil
	}
	if payload.MIMEType == MIMETypeWAV || strings.HasSuffix(payload.MIMEType, "/x-wav") {
		pcm, err := DecodeWAV(payload.Data)
		if err == nil && pcm.Channels == 1 {
			return p.PlaySamples(ctx, pcm.Samples, pcm.SampleRate, media)
		}
	}
	return p.playExternal(ctx, payload)
}

func (p *Player) playExternal(ctx context.Context, payload Payload) error {
	dir, err := os.MkdirTemp("", "rehearse-prompt-")
	if err != nil {
		return fmt.Errorf("create prompt temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "prompt"+ExtensionFor(payload.MIMEType))
	if err := os.WriteFile(path, payload.Data, 0o600); err != nil {
		return fmt.Errorf("write prompt audio: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	argv := p.Command
	if len(argv) == 0 {
		argv = []string{"pw-play", "--media-role", "Communication"}
	}
	cmd := exec.CommandContext(ctx, argv[0], playerArgs(argv[1:], path)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %w (%s)", argv[0], payload.MIMEType, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ExtensionFor maps an audio MIME type to a file extension.
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	default:
		return ".bin"
	}
}

func playerArgs(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)
	substituted := false
	for _, arg := range args {
		if strings.Contains(arg, "{file}") {
			arg = strings.ReplaceAll(arg, "{file}", path)
			substituted = true
		}
		out = append(out, arg)
	}
	if !substituted {
		out = append(out, path)
	}
	return out
}
