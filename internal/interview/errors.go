package interview

import "errors"

var (
	ErrDeviceUnavailable   = errors.New("audio device unavailable")
	ErrAlreadyRecording    = errors.New("already recording")
	ErrNotRecording        = errors.New("not recording")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrAnalysisFailed      = errors.New("analysis failed")
	ErrSummaryFailed       = errors.New("summary failed")
	ErrSaveFailed          = errors.New("save failed")
	ErrNoSnapshot          = errors.New("no snapshot")
	ErrCorruptSnapshot     = errors.New("corrupt snapshot")
	ErrNoQuestions         = errors.New("no questions")
)
