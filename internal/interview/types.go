// Package interview defines the session data model shared by the engine packages.
package interview

import (
	"time"

	"github.com/google/uuid"
	"github.com/rbright/rehearse/internal/fsm"
)

// Question is one prompt in a session. Index is its canonical position.
type Question struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
}

// Stage names where an answer attempt failed.
type Stage string

const (
	StageCapture     Stage = "capture"
	StageTranscribe  Stage = "transcribe"
	StageAnalyze     Stage = "analyze"
	StageInterrupted Stage = "interrupted"
)

// Analysis is the per-answer result of the analysis collaborator.
type Analysis struct {
	Content  string   `json:"analysis_content"`
	Delivery string   `json:"analysis_delivery"`
	Score    *float64 `json:"score,omitempty"`
}

// AnswerRecord tracks one question's answer through the pipeline.
type AnswerRecord struct {
	QuestionIndex    int        `json:"questionIndex"`
	Transcript       *string    `json:"transcript,omitempty"`
	AnalysisContent  *string    `json:"analysisContent,omitempty"`
	AnalysisDelivery *string    `json:"analysisDelivery,omitempty"`
	Score            *float64   `json:"score,omitempty"`
	Status           fsm.Status `json:"status"`
	FailedStage      Stage      `json:"failedStage,omitempty"`
	Error            string     `json:"error,omitempty"`
	Attempts         int        `json:"attempts"`
}

// Reset clears every populated field for a new attempt.
func (r *AnswerRecord) Reset() {
	r.Transcript = nil
	r.AnalysisContent = nil
	r.AnalysisDelivery = nil
	r.Score = nil
	r.FailedStage = ""
	r.Error = ""
}

// OverallSummary is the session-level feedback from the summary collaborator.
type OverallSummary struct {
	Strengths    string   `json:"strengths,omitempty"`
	Weaknesses   string   `json:"weaknesses,omitempty"`
	Tips         string   `json:"tips,omitempty"`
	OverallScore *float64 `json:"overall_score,omitempty"`
	Text         string   `json:"text,omitempty"`
}

// State is the full session. The session machine owns the live instance.
type State struct {
	SessionID      string          `json:"sessionId"`
	RunID          string          `json:"runId,omitempty"`
	Role           string          `json:"role,omitempty"`
	Questions      []Question      `json:"questions"`
	Answers        []AnswerRecord  `json:"answers"`
	CurrentIndex   int             `json:"currentIndex"`
	Phase          fsm.Phase       `json:"phase"`
	OverallSummary *OverallSummary `json:"overallSummary,omitempty"`
	SessionScore   *float64        `json:"sessionScore,omitempty"`
	SummaryError   string          `json:"summaryError,omitempty"`
	ArchiveError   string          `json:"archiveError,omitempty"`
	ArchivedAt     *time.Time      `json:"archivedAt,omitempty"`
	StartedAt      time.Time       `json:"startedAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// NewState builds an idle session with one pending record per question.
func NewState(sessionID string, role string, prompts []string, now time.Time) State {
	questions := make([]Question, len(prompts))
	answers := make([]AnswerRecord, len(prompts))
	for i, prompt := range prompts {
		questions[i] = Question{Index: i, Prompt: prompt}
		answers[i] = AnswerRecord{QuestionIndex: i, Status: fsm.StatusPending}
	}
	return State{
		SessionID: sessionID,
		Role:      role,
		Questions: questions,
		Answers:   answers,
		Phase:     fsm.PhaseIdle,
		StartedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Current returns the question at CurrentIndex.
func (s State) Current() (Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// Clone returns a deep copy safe to hand outside the owning machine.
func (s State) Clone() State {
	out := s
	out.Questions = append([]Question(nil), s.Questions...)
	out.Answers = make([]AnswerRecord, len(s.Answers))
	for i, rec := range s.Answers {
		out.Answers[i] = rec.Clone()
	}
	if s.OverallSummary != nil {
		summary := *s.OverallSummary
		summary.OverallScore = cloneFloat(s.OverallSummary.OverallScore)
		out.OverallSummary = &summary
	}
	out.SessionScore = cloneFloat(s.SessionScore)
	if s.ArchivedAt != nil {
		at := *s.ArchivedAt
		out.ArchivedAt = &at
	}
	return out
}

// Clone returns a deep copy of the record.
func (r AnswerRecord) Clone() AnswerRecord {
	out := r
	out.Transcript = cloneString(r.Transcript)
	out.AnalysisContent = cloneString(r.AnalysisContent)
	out.AnalysisDelivery = cloneString(r.AnalysisDelivery)
	out.Score = cloneFloat(r.Score)
	return out
}

// SummaryItem is one question's contribution to the overall summary request and history.
type SummaryItem struct {
	Question         string   `json:"question"`
	Response         *string  `json:"response,omitempty"`
	AnalysisContent  *string  `json:"analysis_content,omitempty"`
	AnalysisDelivery *string  `json:"analysis_delivery,omitempty"`
	Score            *float64 `json:"score,omitempty"`
}

// HistoryEntry is an archived completed session.
type HistoryEntry struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Date      time.Time       `json:"date"`
	Score     *float64        `json:"score,omitempty"`
	Questions []SummaryItem   `json:"questions"`
	Summary   *OverallSummary `json:"summary,omitempty"`
}

// NewID returns a random identifier for one session run. History entries
// are keyed on it.
func NewID() string {
	return uuid.NewString()
}

// String returns a pointer to v.
func String(v string) *string { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
