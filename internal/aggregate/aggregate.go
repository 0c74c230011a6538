// Package aggregate merges per-question results into the session summary and score.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Summarizer produces overall feedback from every question's results.
type Summarizer interface {
	Summarize(ctx context.Context, items []interview.SummaryItem) (interview.OverallSummary, error)
}

// Result is the outcome of aggregation. Err wraps ErrSummaryFailed when the collaborator failed.
type Result struct {
	Items   []interview.SummaryItem
	Summary *interview.OverallSummary
	Score   *float64
	Err     error
}

// Aggregator runs the summary request for a finished session.
type Aggregator struct {
	summarizer Summarizer
	logger     zerolog.Logger
	tracer     trace.Tracer
	timeout    time.Duration
}

// New builds an Aggregator. A nil tracer disables spans.
func New(summarizer Summarizer, logger zerolog.Logger, tracer trace.Tracer, timeout time.Duration) *Aggregator {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("aggregate")
	}
	return &Aggregator{summarizer: summarizer, logger: logger, tracer: tracer, timeout: timeout}
}

// Summarize requests the overall summary and computes the session score.
// The score never depends on the collaborator succeeding.
func (a *Aggregator) Summarize(ctx context.Context, state interview.State) Result {
	result := Result{Items: Items(state)}
	if score, ok := SessionScore(state.Answers); ok {
		result.Score = &score
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	ctx, span := a.tracer.Start(ctx, "aggregate.summarize", trace.WithAttributes(
		attribute.String("session.id", state.SessionID),
		attribute.Int("session.questions", len(state.Questions)),
	))
	defer span.End()

	if a.summarizer == nil {
		result.Err = fmt.Errorf("%w: no summarizer configured", interview.ErrSummaryFailed)
		return result
	}

	summary, err := a.summarizer.Summarize(ctx, result.Items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn().Err(err).Str("session", state.SessionID).Msg("overall summary failed")
		result.Err = fmt.Errorf("%w: %w", interview.ErrSummaryFailed, err)
		return result
	}
	result.Summary = &summary
	return result
}

// Items lists every question's prompt and results in question order.
// Failed records contribute whatever fields they have, absent otherwise.
func Items(state interview.State) []interview.SummaryItem {
	items := make([]interview.SummaryItem, len(state.Questions))
	for i, q := range state.Questions {
		items[i] = interview.SummaryItem{Question: q.Prompt}
		if i >= len(state.Answers) {
			continue
		}
		rec := state.Answers[i].Clone()
		items[i].Response = rec.Transcript
		items[i].AnalysisContent = rec.AnalysisContent
		items[i].AnalysisDelivery = rec.AnalysisDelivery
		items[i].Score = rec.Score
	}
	return items
}

// SessionScore is the mean score of complete records. It reports false when
// no complete record carries a score.
func SessionScore(answers []interview.AnswerRecord) (float64, bool) {
	var (
		sum   float64
		count int
	)
	for _, rec := range answers {
		if rec.Status != fsm.StatusComplete || rec.Score == nil {
			continue
		}
		sum += *rec.Score
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}
