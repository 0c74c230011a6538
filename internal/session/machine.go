// Package session owns the live interview state and sequences capture,
// pipeline processing, summary and persistence around it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/aggregate"
	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/indicator"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/metrics"
	"github.com/rbright/rehearse/internal/pipeline"
	"github.com/rs/zerolog"
)

// Capture is the session-facing subset of audio.Recorder.
type Capture interface {
	Begin(ctx context.Context) error
	End(ctx context.Context) (audio.Payload, error)
	Abort()
	Active() bool
}

// Pipeline is the session-facing subset of pipeline.Runner.
type Pipeline interface {
	Begin(index int) pipeline.Token
	Run(ctx context.Context, job pipeline.Job) (pipeline.Outcome, error)
	Current(index int, token pipeline.Token) bool
	Cancel(index int)
	Close()
}

// Summarizer is the session-facing subset of aggregate.Aggregator.
type Summarizer interface {
	Summarize(ctx context.Context, state interview.State) aggregate.Result
}

// Persister is the session-facing subset of persist.Bridge.
type Persister interface {
	Snapshot(ctx context.Context, state interview.State) error
	Archive(ctx context.Context, state interview.State) (interview.HistoryEntry, error)
}

// Prompter speaks a question aloud. Cancelling ctx stops playback.
type Prompter interface {
	Announce(ctx context.Context, text string) error
}

// Options wires a Machine. Capture, Pipeline and Summarizer are required.
type Options struct {
	SessionID  string
	Role       string
	Capture    Capture
	Pipeline   Pipeline
	Summarizer Summarizer
	Persister  Persister
	Notifier   indicator.Notifier
	Prompter   Prompter
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Machine is the single owner of one session's state. Every mutation goes
// through its methods; callers only see deep copies.
type Machine struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	// ops serializes user actions so a phase checked before a blocking
	// device call is still current when the result is applied.
	ops sync.Mutex

	mu           sync.Mutex
	state        interview.State
	version      uint64
	token        pipeline.Token
	promptCancel context.CancelFunc
	done         chan struct{}
	doneOnce     sync.Once

	persistMu sync.Mutex
	persisted uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an idle Machine.
func New(opts Options) (*Machine, error) {
	if opts.Capture == nil {
		return nil, errors.New("session capture is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("session pipeline is required")
	}
	if opts.Summarizer == nil {
		return nil, errors.New("session summarizer is required")
	}
	if opts.SessionID == "" {
		opts.SessionID = "default"
	}
	if opts.Notifier == nil {
		opts.Notifier = indicator.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		opts:   opts,
		logger: opts.Logger.With().Str("session", opts.SessionID).Logger(),
		now:    now,
		state:  interview.NewState(opts.SessionID, opts.Role, nil, now()),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// State returns a deep copy of the current state.
func (m *Machine) State() interview.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Done is closed once the session is complete and its archive was attempted.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until background pipeline, summary, archive and prompt work has finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Close cancels background work and releases the capture device.
func (m *Machine) Close() {
	m.cancel()
	if m.opts.Capture.Active() {
		m.opts.Capture.Abort()
	}
	m.opts.Pipeline.Close()
	m.wg.Wait()
}

// Begin starts a session over prompts.
func (m *Machine) Begin(ctx context.Context, prompts []string) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if _, err := fsm.Transition(m.state.Phase, fsm.EventStart); err != nil {
		m.mu.Unlock()
		return err
	}
	if len(prompts) == 0 {
		m.mu.Unlock()
		return interview.ErrNoQuestions
	}
	m.state = interview.NewState(m.opts.SessionID, m.opts.Role, prompts, m.now())
	m.state.RunID = interview.NewID()
	m.fire(fsm.EventStart)
	snap := m.commitLocked()
	m.mu.Unlock()

	m.publish(ctx, snap)
	m.logger.Info().Int("questions", len(prompts)).Msg("session started")
	m.announce(snap)
	return nil
}

// Resume adopts a restored state. Records interrupted mid-capture or
// mid-pipeline are failed and the session waits for the user to retry or advance.
func (m *Machine) Resume(ctx context.Context, restored interview.State) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if m.state.Phase != fsm.PhaseIdle || len(m.state.Questions) != 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: resume into %s session", fsm.ErrInvalidTransition, m.state.Phase)
	}
	m.state = restored.Clone()
	m.state.SessionID = m.opts.SessionID
	if m.state.RunID == "" {
		m.state.RunID = interview.NewID()
	}
	interrupted := m.normalizeLocked()
	phase := m.state.Phase
	snap := m.commitLocked()
	m.mu.Unlock()

	m.publish(ctx, snap)
	m.logger.Info().
		Str("phase", string(phase)).
		Int("current", snap.state.CurrentIndex).
		Int("interrupted", interrupted).
		Msg("session resumed")

	switch phase {
	case fsm.PhaseAwaitingAnswer:
		m.announce(snap)
	case fsm.PhaseSummarizing:
		m.goSummarize()
	case fsm.PhaseComplete:
		if snap.state.ArchivedAt == nil {
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				_ = m.archive(m.ctx)
				m.finish()
			}()
		} else {
			m.finish()
		}
	}
	return nil
}

// normalizeLocked fails records left in flight by a previous process.
func (m *Machine) normalizeLocked() int {
	interrupted := 0
	for i := range m.state.Answers {
		rec := &m.state.Answers[i]
		if rec.Status != fsm.StatusRecording && rec.Status != fsm.StatusProcessing {
			continue
		}
		if rec.Status == fsm.StatusRecording {
			rec.Status = fsm.StatusProcessing
		}
		rec.Status = fsm.StatusFailed
		rec.FailedStage = interview.StageInterrupted
		rec.Error = "interrupted before the answer was processed"
		interrupted++
	}
	switch m.state.Phase {
	case fsm.PhaseRecording, fsm.PhaseProcessingAnswer:
		m.state.Phase = fsm.PhaseReadyToAdvance
	}
	return interrupted
}

// StartAnswer acquires the capture device for the current question. From
// ready_to_advance it re-records the current question.
func (m *Machine) StartAnswer(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if _, err := fsm.Transition(m.state.Phase, fsm.EventStartAnswer); err != nil {
		m.mu.Unlock()
		return err
	}
	index := m.state.CurrentIndex
	if m.promptCancel != nil {
		m.promptCancel()
		m.promptCancel = nil
	}
	m.mu.Unlock()

	if err := m.opts.Capture.Begin(ctx); err != nil {
		m.opts.Metrics.RecordCaptureError(captureErrorKind(err))
		m.logger.Warn().Err(err).Int("question", index).Msg("capture start failed")
		m.opts.Notifier.ShowError(ctx, err.Error())
		return err
	}

	m.mu.Lock()
	rec := &m.state.Answers[index]
	if _, err := fsm.Advance(rec.Status, fsm.StatusRecording); err != nil {
		m.mu.Unlock()
		m.opts.Capture.Abort()
		return err
	}
	m.opts.Pipeline.Cancel(index)
	rec.Reset()
	rec.Status = fsm.StatusRecording
	rec.Attempts++
	m.fire(fsm.EventStartAnswer)
	snap := m.commitLocked()
	m.mu.Unlock()

	m.publish(ctx, snap)
	return nil
}

// StopAnswer ends capture and hands the recording to the pipeline. A capture
// failure fails the record and settles the phase without running the pipeline.
func (m *Machine) StopAnswer(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if _, err := fsm.Transition(m.state.Phase, fsm.EventStopAnswer); err != nil {
		m.mu.Unlock()
		return err
	}
	index := m.state.CurrentIndex
	prompt := m.state.Questions[index].Prompt
	m.mu.Unlock()

	payload, captureErr := m.opts.Capture.End(ctx)

	m.mu.Lock()
	rec := &m.state.Answers[index]
	m.advanceRecordLocked(rec, fsm.StatusProcessing)
	m.fire(fsm.EventStopAnswer)

	if captureErr != nil {
		m.advanceRecordLocked(rec, fsm.StatusFailed)
		rec.FailedStage = interview.StageCapture
		rec.Error = captureErr.Error()
		m.fire(fsm.EventSettled)
		snap := m.commitLocked()
		m.mu.Unlock()

		m.opts.Metrics.RecordCaptureError(captureErrorKind(captureErr))
		m.logger.Warn().Err(captureErr).Int("question", index).Msg("capture end failed")
		m.publish(ctx, snap)
		m.opts.Notifier.ShowError(ctx, captureErr.Error())
		return nil
	}

	token := m.opts.Pipeline.Begin(index)
	m.token = token
	snap := m.commitLocked()
	m.mu.Unlock()

	m.opts.Metrics.RecordCapture(payload.Duration)
	m.publish(ctx, snap)

	job := pipeline.Job{Index: index, Token: token, Prompt: prompt, Payload: payload}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.process(job)
	}()
	return nil
}

// process runs one pipeline invocation and merges a current outcome.
func (m *Machine) process(job pipeline.Job) {
	out, err := m.opts.Pipeline.Run(m.ctx, job)
	if err != nil {
		m.logger.Debug().Err(err).Int("question", job.Index).Msg("pipeline result dropped")
		return
	}

	m.mu.Lock()
	if !m.opts.Pipeline.Current(job.Index, job.Token) ||
		m.token != job.Token ||
		m.state.Phase != fsm.PhaseProcessingAnswer ||
		m.state.CurrentIndex != job.Index {
		m.mu.Unlock()
		m.opts.Metrics.RecordSuperseded()
		m.logger.Debug().Int("question", job.Index).Msg("stale pipeline outcome dropped")
		return
	}

	rec := &m.state.Answers[job.Index]
	m.advanceRecordLocked(rec, out.Status)
	rec.Transcript = out.Transcript
	if out.Status == fsm.StatusComplete && out.Analysis != nil {
		rec.AnalysisContent = interview.String(out.Analysis.Content)
		rec.AnalysisDelivery = interview.String(out.Analysis.Delivery)
		rec.Score = out.Analysis.Score
	} else {
		rec.FailedStage = out.FailedStage
		if out.Err != nil {
			rec.Error = out.Err.Error()
		}
	}
	m.fire(fsm.EventSettled)
	snap := m.commitLocked()
	m.mu.Unlock()

	m.publish(m.ctx, snap)
	if out.Status == fsm.StatusFailed && out.Err != nil {
		m.opts.Notifier.ShowError(m.ctx, out.Err.Error())
	}
}

// Advance moves to the next question, or to summarizing after the last one.
func (m *Machine) Advance(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	last := m.state.CurrentIndex+1 >= len(m.state.Questions)
	event := fsm.EventNext
	if last {
		event = fsm.EventFinish
	}
	if _, err := fsm.Transition(m.state.Phase, event); err != nil {
		m.mu.Unlock()
		return err
	}

	if last {
		for _, rec := range m.state.Answers {
			if !rec.Status.Terminal() {
				m.mu.Unlock()
				return fmt.Errorf("%w: question %d is %s", fsm.ErrInvalidTransition, rec.QuestionIndex, rec.Status)
			}
		}
		m.fire(fsm.EventFinish)
	} else {
		m.state.CurrentIndex++
		m.fire(fsm.EventNext)
	}
	snap := m.commitLocked()
	m.mu.Unlock()

	m.publish(ctx, snap)
	if last {
		m.goSummarize()
	} else {
		m.announce(snap)
	}
	return nil
}

func (m *Machine) goSummarize() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.summarize()
	}()
}

// summarize requests the overall summary, completes the session and archives it.
func (m *Machine) summarize() {
	result := m.opts.Summarizer.Summarize(m.ctx, m.State())
	if m.ctx.Err() != nil {
		m.logger.Debug().Msg("summary dropped on shutdown")
		return
	}

	m.mu.Lock()
	if m.state.Phase != fsm.PhaseSummarizing {
		m.mu.Unlock()
		return
	}
	m.state.OverallSummary = result.Summary
	m.state.SessionScore = result.Score
	m.state.SummaryError = ""
	if result.Err != nil {
		m.state.SummaryError = result.Err.Error()
	}
	m.state.CurrentIndex = len(m.state.Questions)
	m.fire(fsm.EventSummarized)
	snap := m.commitLocked()
	m.mu.Unlock()

	m.opts.Metrics.RecordSessionComplete(snap.state.SessionScore)
	m.logger.Info().
		Bool("scored", snap.state.SessionScore != nil).
		Bool("summary", snap.state.OverallSummary != nil).
		Msg("session complete")
	m.publish(m.ctx, snap)
	if result.Err != nil {
		m.opts.Notifier.ShowError(m.ctx, result.Err.Error())
	}

	_ = m.archive(m.ctx)
	m.finish()
}

// RetrySave re-attempts the archive of a completed session.
func (m *Machine) RetrySave(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	phase := m.state.Phase
	saved := m.state.ArchivedAt != nil && m.state.ArchiveError == ""
	m.mu.Unlock()

	if phase != fsm.PhaseComplete {
		return fmt.Errorf("%w: retry-save from %s", fsm.ErrInvalidTransition, phase)
	}
	if saved {
		return nil
	}
	return m.archive(ctx)
}

// archive saves the completed session and records the outcome on the state.
func (m *Machine) archive(ctx context.Context) error {
	if m.opts.Persister == nil {
		return nil
	}
	entry, err := m.opts.Persister.Archive(ctx, m.State())

	m.mu.Lock()
	if err != nil {
		m.state.ArchiveError = err.Error()
	} else {
		at := entry.Date
		m.state.ArchivedAt = &at
		m.state.ArchiveError = ""
	}
	m.state.UpdatedAt = m.now().UTC()
	snap := m.commitLocked()
	m.mu.Unlock()

	m.publish(ctx, snap)
	if err != nil {
		m.logger.Warn().Err(err).Msg("session archive failed; run retry-save")
		m.opts.Notifier.ShowError(ctx, err.Error())
		return err
	}
	m.logger.Info().Str("entry", entry.ID).Msg("session archived")
	return nil
}

func (m *Machine) finish() {
	m.doneOnce.Do(func() { close(m.done) })
}

// fire applies event to the phase. Callers have already validated it.
func (m *Machine) fire(event fsm.Event) {
	next, err := fsm.Transition(m.state.Phase, event)
	if err != nil {
		m.logger.Error().Err(err).Msg("unexpected transition failure")
		return
	}
	m.state.Phase = next
	m.state.UpdatedAt = m.now().UTC()
	m.opts.Metrics.RecordPhase(string(next))
}

func (m *Machine) advanceRecordLocked(rec *interview.AnswerRecord, next fsm.Status) {
	status, err := fsm.Advance(rec.Status, next)
	if err != nil {
		m.logger.Error().Err(err).Int("question", rec.QuestionIndex).Msg("unexpected record transition")
		return
	}
	rec.Status = status
}

type snapshot struct {
	version uint64
	state   interview.State
}

// commitLocked stamps a new state version and copies it for publishing.
func (m *Machine) commitLocked() snapshot {
	m.version++
	return snapshot{version: m.version, state: m.state.Clone()}
}

// publish persists and signals a committed state. Older versions never
// overwrite newer ones.
func (m *Machine) publish(ctx context.Context, snap snapshot) {
	if m.opts.Persister != nil {
		m.persistMu.Lock()
		if snap.version > m.persisted {
			if err := m.opts.Persister.Snapshot(context.WithoutCancel(ctx), snap.state); err != nil {
				m.logger.Error().Err(err).Msg("snapshot write failed")
			} else {
				m.persisted = snap.version
			}
		}
		m.persistMu.Unlock()
	}
	m.opts.Notifier.PhaseChanged(ctx, snap.state)
}

// announce speaks the current question in the background until the user
// starts answering.
func (m *Machine) announce(snap snapshot) {
	if m.opts.Prompter == nil {
		return
	}
	question, ok := snap.state.Current()
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	if m.promptCancel != nil {
		m.promptCancel()
	}
	m.promptCancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		if err := m.opts.Prompter.Announce(ctx, question.Prompt); err != nil && ctx.Err() == nil {
			m.logger.Debug().Err(err).Int("question", question.Index).Msg("question prompt failed")
		}
	}()
}

func captureErrorKind(err error) string {
	switch {
	case errors.Is(err, interview.ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, interview.ErrAlreadyRecording):
		return "already_recording"
	case errors.Is(err, interview.ErrNotRecording):
		return "not_recording"
	default:
		return "other"
	}
}
