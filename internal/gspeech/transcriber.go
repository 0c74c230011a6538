// Package gspeech transcribes answer recordings with Google Cloud Speech-to-Text.
package gspeech

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/transcript"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

// Phrase is one vocabulary boost phrase.
type Phrase struct {
	Phrase string
	Boost  float32
}

// Config controls client construction and recognition.
type Config struct {
	// Endpoint overrides the Google endpoint, for example a local emulator.
	// Custom endpoints are dialed without TLS.
	Endpoint             string
	CredentialsFile      string
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	CapitalizeSentences  bool
	Phrases              []Phrase
	DialTimeout          time.Duration
	// DebugResponseSinkJSON receives each response as one JSON line when set.
	DebugResponseSinkJSON io.Writer
	Logger                zerolog.Logger
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type clientRecognizer struct {
	client *speech.Client
	conn   *grpc.ClientConn
}

func (c clientRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return c.client.Recognize(ctx, req)
}

func (c clientRecognizer) Close() error {
	err := c.client.Close()
	if c.conn != nil {
		err = errors.Join(err, c.conn.Close())
	}
	return err
}

// Transcriber implements pipeline.Transcriber over synchronous Recognize.
type Transcriber struct {
	rec    recognizer
	cfg    Config
	logger zerolog.Logger
}

// New dials Speech-to-Text. Without an endpoint it uses application default
// credentials or cfg.CredentialsFile.
func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}

	var opts []option.ClientOption
	var conn *grpc.ClientConn
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		var err error
		conn, err = grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial speech grpc %q: %w", endpoint, err)
		}

		readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		conn.Connect()
		if err := waitForReady(readyCtx, conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("wait for speech grpc readiness: %w", err)
		}
		opts = append(opts, option.WithGRPCConn(conn))
	} else if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return newWithRecognizer(clientRecognizer{client: client, conn: conn}, cfg), nil
}

func newWithRecognizer(rec recognizer, cfg Config) *Transcriber {
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	return &Transcriber{rec: rec, cfg: cfg, logger: cfg.Logger}
}

// Transcribe recognizes one WAV answer recording.
func (t *Transcriber) Transcribe(ctx context.Context, payload audio.Payload) (string, error) {
	pcm, err := audio.DecodeWAV(payload.Data)
	if err != nil {
		return "", fmt.Errorf("decode answer audio: %w", err)
	}

	resp, err := t.rec.Recognize(ctx, t.request(pcm))
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	t.writeDebugResponse(resp)

	segments := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		segments = append(segments, alts[0].GetTranscript())
	}

	text := transcript.Assemble(segments, transcript.Options{CapitalizeSentences: t.cfg.CapitalizeSentences})
	t.logger.Debug().
		Int("results", len(resp.GetResults())).
		Int("chars", len(text)).
		Msg("speech recognition finished")
	return text, nil
}

func (t *Transcriber) request(pcm audio.PCM) *speechpb.RecognizeRequest {
	content := make([]byte, len(pcm.Samples)*2)
	for i, s := range pcm.Samples {
		binary.LittleEndian.PutUint16(content[i*2:], uint16(s))
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(pcm.SampleRate),
		AudioChannelCount:          int32(pcm.Channels),
		LanguageCode:               t.cfg.LanguageCode,
		Model:                      strings.TrimSpace(t.cfg.Model),
		EnableAutomaticPunctuation: t.cfg.AutomaticPunctuation,
	}
	for _, p := range t.cfg.Phrases {
		phrase := strings.TrimSpace(p.Phrase)
		if phrase == "" {
			continue
		}
		cfg.SpeechContexts = append(cfg.SpeechContexts, &speechpb.SpeechContext{
			Phrases: []string{phrase},
			Boost:   p.Boost,
		})
	}

	return &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	}
}

func (t *Transcriber) writeDebugResponse(resp *speechpb.RecognizeResponse) {
	if t.cfg.DebugResponseSinkJSON == nil || resp == nil {
		return
	}
	line, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(resp)
	if err != nil {
		t.logger.Warn().Err(err).Msg("marshal speech debug response")
		return
	}
	_, _ = t.cfg.DebugResponseSinkJSON.Write(append(line, '\n'))
}

// Close releases the client.
func (t *Transcriber) Close() error {
	if t.rec == nil {
		return nil
	}
	return t.rec.Close()
}

// waitForReady blocks until the connection is Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
