package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/rs/zerolog"
)

// MIMETypeWAV is the declared type of recorded answers.
const MIMETypeWAV = "audio/wav"

// Payload is one flushed recording.
type Payload struct {
	Data     []byte
	MIMEType string
	Duration time.Duration
}

// Empty reports whether the payload carries no audio.
func (p Payload) Empty() bool {
	return len(p.Data) == 0
}

// Source acquires an input device and starts streaming PCM.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an active device capture. Stop flushes and closes Chunks.
type Stream interface {
	Device() Device
	Chunks() <-chan []byte
	Stop() error
}

// Recorder is the exclusive capture controller for answers.
type Recorder struct {
	source Source
	logger zerolog.Logger

	mu     sync.Mutex
	active *recording
}

type recording struct {
	stream    Stream
	startedAt time.Time
	ending    bool

	buf  []byte
	done chan struct{}
}

// NewRecorder builds a recorder over source.
func NewRecorder(source Source, logger zerolog.Logger) *Recorder {
	return &Recorder{source: source, logger: logger}
}

// Begin acquires the device and starts buffering chunks.
func (r *Recorder) Begin(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return interview.ErrAlreadyRecording
	}
	if r.source == nil {
		return fmt.Errorf("%w: no audio source configured", interview.ErrDeviceUnavailable)
	}

	stream, err := r.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", interview.ErrDeviceUnavailable, err)
	}

	rec := &recording{
		stream:    stream,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go rec.drain()
	r.active = rec

	r.logger.Debug().Str("device", stream.Device().Label()).Msg("capture started")
	return nil
}

// End stops capture, waits for the final chunk, and returns the WAV payload.
func (r *Recorder) End(ctx context.Context) (Payload, error) {
	rec, err := r.claim()
	if err != nil {
		return Payload{}, err
	}
	defer r.release(rec)

	if err := r.stop(ctx, rec); err != nil {
		return Payload{}, err
	}

	payload := Payload{
		Data:     EncodeWAV(rec.buf, SampleRate, 1),
		MIMEType: MIMETypeWAV,
		Duration: pcmDuration(len(rec.buf)),
	}
	r.logger.Debug().
		Int("pcm_bytes", len(rec.buf)).
		Dur("duration", payload.Duration).
		Dur("elapsed", time.Since(rec.startedAt)).
		Msg("capture flushed")
	return payload, nil
}

// Abort stops an active capture and discards its buffer.
func (r *Recorder) Abort() {
	rec, err := r.claim()
	if err != nil {
		return
	}
	defer r.release(rec)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.stop(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Msg("capture abort did not finish cleanly")
		return
	}
	rec.buf = nil
}

// Active reports whether a capture currently owns the device.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// claim marks the active recording as ending. The device stays owned until release.
func (r *Recorder) claim() (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.ending {
		return nil, interview.ErrNotRecording
	}
	r.active.ending = true
	return r.active, nil
}

func (r *Recorder) release(rec *recording) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == rec {
		r.active = nil
	}
}

func (r *Recorder) stop(ctx context.Context, rec *recording) error {
	stopErr := rec.stream.Stop()
	select {
	case <-rec.done:
	case <-ctx.Done():
		return fmt.Errorf("await final audio chunk: %w", ctx.Err())
	}
	if stopErr != nil {
		return fmt.Errorf("stop capture: %w", stopErr)
	}
	return nil
}

// drain appends chunks in arrival order until the stream closes.
func (rec *recording) drain() {
	defer close(rec.done)
	for chunk := range rec.stream.Chunks() {
		rec.buf = append(rec.buf, chunk...)
	}
}

func pcmDuration(n int) time.Duration {
	samples := n / 2
	return time.Duration(samples) * time.Second / SampleRate
}
