// Package pipeline runs the transcribe -> analyze -> commit stages for one answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrSuperseded is returned by Run when a newer invocation for the same question exists.
var ErrSuperseded = errors.New("superseded pipeline invocation")

// Transcriber turns an answer recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, payload audio.Payload) (string, error)
}

// Analyzer scores one transcribed answer against its question.
type Analyzer interface {
	Analyze(ctx context.Context, question string, response string) (interview.Analysis, error)
}

// Token identifies one invocation for a question.
type Token uint64

// Job is one pipeline invocation.
type Job struct {
	Index   int
	Token   Token
	Prompt  string
	Payload audio.Payload
}

// Outcome is the settled result of a non-superseded invocation.
// A failed outcome keeps any transcript produced before the failing stage.
type Outcome struct {
	Index       int
	Token       Token
	Status      fsm.Status
	Transcript  *string
	Analysis    *interview.Analysis
	FailedStage interview.Stage
	Err         error
}

// Options configures a Runner.
type Options struct {
	Transcriber  Transcriber
	Analyzer     Analyzer
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Tracer       trace.Tracer
	StageTimeout time.Duration
	// AudioDumpDir receives a copy of every submitted recording when set.
	AudioDumpDir string
}

// Runner executes stages and guards results with per-question tokens.
type Runner struct {
	transcriber  Transcriber
	analyzer     Analyzer
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	stageTimeout time.Duration
	audioDumpDir string

	mu      sync.Mutex
	seq     Token
	tokens  map[int]Token
	cancels map[int]context.CancelFunc
}

// New constructs a Runner.
func New(opts Options) *Runner {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	return &Runner{
		transcriber:  opts.Transcriber,
		analyzer:     opts.Analyzer,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		tracer:       tracer,
		stageTimeout: opts.StageTimeout,
		audioDumpDir: opts.AudioDumpDir,
		tokens:       make(map[int]Token),
		cancels:      make(map[int]context.CancelFunc),
	}
}

// Begin issues a fresh token for index and cancels any in-flight invocation for it.
func (r *Runner) Begin(index int) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.cancels[index]; ok {
		cancel()
		delete(r.cancels, index)
	}
	r.seq++
	r.tokens[index] = r.seq
	return r.seq
}

// Current reports whether token is the latest for index.
func (r *Runner) Current(index int, token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[index] == token
}

// Cancel aborts the in-flight invocation for index and invalidates its token.
func (r *Runner) Cancel(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[index]; ok {
		cancel()
		delete(r.cancels, index)
	}
	delete(r.tokens, index)
}

// Close cancels every in-flight invocation.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for index, cancel := range r.cancels {
		cancel()
		delete(r.cancels, index)
	}
}

// Run executes the stages for job. Stage failures are reported in the Outcome;
// the error is non-nil only when the invocation was superseded or ctx ended.
func (r *Runner) Run(ctx context.Context, job Job) (Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !r.register(job, cancel) {
		r.metrics.RecordSuperseded()
		return Outcome{}, ErrSuperseded
	}
	defer r.unregister(job)

	r.dumpAudio(job)

	out := Outcome{Index: job.Index, Token: job.Token}
	log := r.logger.With().Int("question", job.Index).Uint64("token", uint64(job.Token)).Logger()

	text, err := r.transcribe(runCtx, job)
	if err != nil {
		if stale := r.settledErr(ctx, job); stale != nil {
			return Outcome{}, stale
		}
		log.Warn().Err(err).Msg("transcribe stage failed")
		out.Status = fsm.StatusFailed
		out.FailedStage = interview.StageTranscribe
		out.Err = err
		return out, nil
	}
	out.Transcript = &text

	analysis, err := r.analyze(runCtx, job, text)
	if err != nil {
		if stale := r.settledErr(ctx, job); stale != nil {
			return Outcome{}, stale
		}
		log.Warn().Err(err).Msg("analyze stage failed")
		out.Status = fsm.StatusFailed
		out.FailedStage = interview.StageAnalyze
		out.Err = err
		return out, nil
	}

	if stale := r.settledErr(ctx, job); stale != nil {
		return Outcome{}, stale
	}
	out.Status = fsm.StatusComplete
	out.Analysis = &analysis
	log.Debug().Msg("pipeline committed")
	return out, nil
}

func (r *Runner) transcribe(ctx context.Context, job Job) (string, error) {
	if r.transcriber == nil {
		return "", fmt.Errorf("%w: no transcriber configured", interview.ErrTranscriptionFailed)
	}
	var text string
	err := r.stage(ctx, job, interview.StageTranscribe, func(ctx context.Context) error {
		if job.Payload.Empty() {
			return errors.New("empty recording")
		}
		out, err := r.transcriber.Transcribe(ctx, job.Payload)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(out)
		if text == "" {
			return errors.New("no speech recognized")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", interview.ErrTranscriptionFailed, err)
	}
	return text, nil
}

func (r *Runner) analyze(ctx context.Context, job Job, transcript string) (interview.Analysis, error) {
	if r.analyzer == nil {
		return interview.Analysis{}, fmt.Errorf("%w: no analyzer configured", interview.ErrAnalysisFailed)
	}
	var analysis interview.Analysis
	err := r.stage(ctx, job, interview.StageAnalyze, func(ctx context.Context) error {
		out, err := r.analyzer.Analyze(ctx, job.Prompt, transcript)
		if err != nil {
			return err
		}
		analysis = out
		return nil
	})
	if err != nil {
		return interview.Analysis{}, fmt.Errorf("%w: %w", interview.ErrAnalysisFailed, err)
	}
	return analysis, nil
}

// stage wraps one collaborator call with a timeout, a span, and metrics.
func (r *Runner) stage(ctx context.Context, job Job, stage interview.Stage, fn func(context.Context) error) error {
	if r.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		defer cancel()
	}
	ctx, span := r.tracer.Start(ctx, "pipeline."+string(stage), trace.WithAttributes(
		attribute.Int("question.index", job.Index),
		attribute.Int64("pipeline.token", int64(job.Token)),
	))
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	r.metrics.RecordStage(string(stage), err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Runner) register(job Job, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens[job.Index] != job.Token {
		return false
	}
	r.cancels[job.Index] = cancel
	return true
}

func (r *Runner) unregister(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens[job.Index] == job.Token {
		delete(r.cancels, job.Index)
	}
}

// settledErr reports why a finished invocation must not be applied, if any.
func (r *Runner) settledErr(ctx context.Context, job Job) error {
	if !r.Current(job.Index, job.Token) {
		r.metrics.RecordSuperseded()
		r.logger.Debug().Int("question", job.Index).Uint64("token", uint64(job.Token)).Msg("discarding superseded result")
		return ErrSuperseded
	}
	return ctx.Err()
}
