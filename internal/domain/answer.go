package domain

import "time"

// AnswerKind enumerates the submission shapes an answer can take.
type AnswerKind string

const (
	AnswerVoice AnswerKind = "voice"
	AnswerText  AnswerKind = "text"
	AnswerCode  AnswerKind = "code"
	AnswerMCQ   AnswerKind = "mcq"
	AnswerFIB   AnswerKind = "fib"
)

// Answer is immutable once stored; at most one per question id (spec §3).
type Answer struct {
	ID         string
	SessionID  string
	QuestionID string
	Kind       AnswerKind

	Text           string   `json:"text,omitempty"`
	Code           string   `json:"code,omitempty"`
	MCQOption      int      `json:"mcqOption,omitempty"`
	FIBValues      []string `json:"fibValues,omitempty"`
	LiveTranscript string   `json:"liveTranscript,omitempty"`

	TimeSpentSeconds int
	SubmittedAt      time.Time
}
