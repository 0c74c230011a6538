package interview

import (
	"testing"
	"time"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/stretchr/testify/require"
)

func TestNewStateCreatesOnePendingRecordPerQuestion(t *testing.T) {
	t.Parallel()

	state := NewState("s1", "engineer", []string{"a", "b", "c"}, time.Unix(10, 0))
	require.Len(t, state.Answers, len(state.Questions))
	for i, rec := range state.Answers {
		require.Equal(t, i, rec.QuestionIndex)
		require.Equal(t, fsm.StatusPending, rec.Status)
		require.Equal(t, i, state.Questions[i].Index)
	}
	require.Equal(t, fsm.PhaseIdle, state.Phase)
	require.Equal(t, 0, state.CurrentIndex)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	state := NewState("s1", "", []string{"a"}, time.Now())
	state.Answers[0].Transcript = String("hello")
	state.Answers[0].Score = Float(80)
	state.OverallSummary = &OverallSummary{Strengths: "clear", OverallScore: Float(70)}

	copied := state.Clone()
	*copied.Answers[0].Transcript = "changed"
	*copied.Answers[0].Score = 1
	copied.OverallSummary.Strengths = "x"
	copied.Questions[0].Prompt = "z"

	require.Equal(t, "hello", *state.Answers[0].Transcript)
	require.Equal(t, 80.0, *state.Answers[0].Score)
	require.Equal(t, "clear", state.OverallSummary.Strengths)
	require.Equal(t, "a", state.Questions[0].Prompt)
}

func TestResetClearsPopulatedFields(t *testing.T) {
	t.Parallel()

	rec := AnswerRecord{
		Transcript:       String("t"),
		AnalysisContent:  String("c"),
		AnalysisDelivery: String("d"),
		Score:            Float(50),
		FailedStage:      StageAnalyze,
		Error:            "boom",
		Attempts:         2,
	}
	rec.Reset()
	require.Nil(t, rec.Transcript)
	require.Nil(t, rec.AnalysisContent)
	require.Nil(t, rec.AnalysisDelivery)
	require.Nil(t, rec.Score)
	require.Empty(t, rec.FailedStage)
	require.Empty(t, rec.Error)
	require.Equal(t, 2, rec.Attempts)
}

func TestCurrent(t *testing.T) {
	t.Parallel()

	state := NewState("s1", "", []string{"a", "b"}, time.Now())
	state.CurrentIndex = 1
	q, ok := state.Current()
	require.True(t, ok)
	require.Equal(t, "b", q.Prompt)

	state.CurrentIndex = 2
	_, ok = state.Current()
	require.False(t, ok)
}
