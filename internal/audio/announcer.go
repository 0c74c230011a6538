package audio

import (
	"context"
	"fmt"
	"strings"
)

// Synthesizer turns prompt text into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice string) (Payload, error)
}

// Announcer speaks question prompts aloud.
type Announcer struct {
	synth  Synthesizer
	player *Player
	voice  string
}

// NewAnnouncer pairs a synthesizer with local playback.
func NewAnnouncer(synth Synthesizer, player *Player, voice string) *Announcer {
	if player == nil {
		player = NewPlayer()
	}
	return &Announcer{synth: synth, player: player, voice: voice}
}

// Announce synthesizes text and plays it. Cancelling ctx stops playback.
func (a *Announcer) Announce(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || a.synth == nil {
		return nil
	}
	payload, err := a.synth.Synthesize(ctx, text, a.voice)
	if err != nil {
		return fmt.Errorf("synthesize prompt: %w", err)
	}
	return a.player.PlayPayload(ctx, payload, "rehearse question")
}
