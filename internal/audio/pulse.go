package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rs/zerolog"
)

const (
	// SampleRate is the capture rate for answers.
	SampleRate     = 16000
	chunkSizeBytes = 640 // 20ms @ 16kHz mono s16
)

// PulseSource opens record streams on the configured Pulse input.
type PulseSource struct {
	Input    string
	Fallback string
	Logger   zerolog.Logger
}

// Open selects a device and starts a 16kHz mono s16 record stream.
func (p PulseSource) Open(ctx context.Context) (Stream, error) {
	selection, err := SelectDevice(ctx, p.Input, p.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" {
		p.Logger.Warn().Str("device", selection.Device.ID).Msg(selection.Warning)
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	s := &pulseStream{
		device: selection.Device,
		client: client,
		chunks: make(chan []byte, 128),
	}

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("rehearse answer"),
	)
	if err != nil {
		_ = s.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	s.stream = stream
	stream.Start()
	return s, nil
}

// pulseStream emits fixed-size PCM chunks from one Pulse record stream.
type pulseStream struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte

	mu       sync.Mutex
	pending  []byte
	stopped  bool
	inflight sync.WaitGroup
}

func (s *pulseStream) Device() Device { return s.device }

func (s *pulseStream) Chunks() <-chan []byte { return s.chunks }

// Stop halts the stream, flushes residual PCM, and closes Chunks exactly once.
func (s *pulseStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
	}
	if s.client != nil {
		s.client.Close()
	}

	s.inflight.Wait()

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(pending) > 0 {
		s.chunks <- pending
	}
	close(s.chunks)
	return nil
}

func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Stop's Wait never races it.
	s.inflight.Add(1)

	s.pending = append(s.pending, buffer...)
	var chunks [][]byte
	for len(s.pending) >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		copy(chunk, s.pending[:chunkSizeBytes])
		s.pending = s.pending[chunkSizeBytes:]
		chunks = append(chunks, chunk)
	}
	s.mu.Unlock()
	defer s.inflight.Done()

	// Chunks is drained until close, so in-flight chunks are never dropped.
	for _, chunk := range chunks {
		s.chunks <- chunk
	}
	return len(buffer), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
