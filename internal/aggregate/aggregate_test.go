package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type summarizerFunc func(context.Context, []interview.SummaryItem) (interview.OverallSummary, error)

func (f summarizerFunc) Summarize(ctx context.Context, items []interview.SummaryItem) (interview.OverallSummary, error) {
	return f(ctx, items)
}

func completed(index int, score float64) interview.AnswerRecord {
	return interview.AnswerRecord{
		QuestionIndex:    index,
		Transcript:       interview.String("answer"),
		AnalysisContent:  interview.String("content"),
		AnalysisDelivery: interview.String("delivery"),
		Score:            interview.Float(score),
		Status:           fsm.StatusComplete,
	}
}

func failed(index int) interview.AnswerRecord {
	return interview.AnswerRecord{QuestionIndex: index, Status: fsm.StatusFailed, FailedStage: interview.StageTranscribe}
}

func stateWith(records ...interview.AnswerRecord) interview.State {
	prompts := make([]string, len(records))
	for i := range records {
		prompts[i] = "q"
	}
	state := interview.NewState("s", "", prompts, time.Now())
	copy(state.Answers, records)
	state.Phase = fsm.PhaseSummarizing
	return state
}

func TestSessionScoreAllComplete(t *testing.T) {
	t.Parallel()

	score, ok := SessionScore([]interview.AnswerRecord{completed(0, 80), completed(1, 90), completed(2, 70)})
	require.True(t, ok)
	require.Equal(t, 80.0, score)
}

func TestSessionScoreExcludesFailedRecords(t *testing.T) {
	t.Parallel()

	score, ok := SessionScore([]interview.AnswerRecord{completed(0, 80), failed(1), completed(2, 70)})
	require.True(t, ok)
	require.Equal(t, 75.0, score)
}

func TestSessionScoreAbsentWhenAllFailed(t *testing.T) {
	t.Parallel()

	score, ok := SessionScore([]interview.AnswerRecord{failed(0), failed(1), failed(2)})
	require.False(t, ok)
	require.Zero(t, score)
}

func TestSessionScoreIgnoresCompleteRecordWithoutScore(t *testing.T) {
	t.Parallel()

	rec := completed(1, 0)
	rec.Score = nil
	score, ok := SessionScore([]interview.AnswerRecord{completed(0, 60), rec})
	require.True(t, ok)
	require.Equal(t, 60.0, score)
}

func TestItemsIncludeFailedRecordsWithAbsentFields(t *testing.T) {
	t.Parallel()

	analysisFailed := interview.AnswerRecord{QuestionIndex: 2, Transcript: interview.String("kept"), Status: fsm.StatusFailed, FailedStage: interview.StageAnalyze}
	state := stateWith(completed(0, 80), failed(1), analysisFailed)
	state.Questions[1].Prompt = "second"

	items := Items(state)
	require.Len(t, items, 3)
	require.Equal(t, "answer", *items[0].Response)
	require.Equal(t, "second", items[1].Question)
	require.Nil(t, items[1].Response)
	require.Nil(t, items[1].Score)
	require.Equal(t, "kept", *items[2].Response)
	require.Nil(t, items[2].AnalysisContent)
}

func TestSummarizeAllFailedStillRequestsSummary(t *testing.T) {
	t.Parallel()

	var got []interview.SummaryItem
	agg := New(summarizerFunc(func(_ context.Context, items []interview.SummaryItem) (interview.OverallSummary, error) {
		got = items
		return interview.OverallSummary{Tips: "practice"}, nil
	}), zerolog.Nop(), nil, 0)

	result := agg.Summarize(context.Background(), stateWith(failed(0), failed(1), failed(2)))
	require.NoError(t, result.Err)
	require.Nil(t, result.Score)
	require.Len(t, got, 3)
	for _, item := range got {
		require.Nil(t, item.Response)
		require.Nil(t, item.AnalysisContent)
		require.Nil(t, item.AnalysisDelivery)
		require.Nil(t, item.Score)
	}
	require.Equal(t, "practice", result.Summary.Tips)
}

func TestSummarizeFailureKeepsScore(t *testing.T) {
	t.Parallel()

	agg := New(summarizerFunc(func(context.Context, []interview.SummaryItem) (interview.OverallSummary, error) {
		return interview.OverallSummary{}, errors.New("timeout")
	}), zerolog.Nop(), nil, time.Second)

	result := agg.Summarize(context.Background(), stateWith(completed(0, 80), completed(1, 90), completed(2, 70)))
	require.ErrorIs(t, result.Err, interview.ErrSummaryFailed)
	require.Nil(t, result.Summary)
	require.Equal(t, 80.0, *result.Score)
}

func TestSummarizeWithoutSummarizer(t *testing.T) {
	t.Parallel()

	result := New(nil, zerolog.Nop(), nil, 0).Summarize(context.Background(), stateWith(completed(0, 50)))
	require.ErrorIs(t, result.Err, interview.ErrSummaryFailed)
	require.Equal(t, 50.0, *result.Score)
}
