package domain

import "time"

// QuestionType enumerates the kinds of question the AI Proxy can draft.
type QuestionType string

const (
	QuestionBehavioral QuestionType = "behavioral"
	QuestionCoding     QuestionType = "coding"
	QuestionScenario   QuestionType = "scenario"
	QuestionMCQ        QuestionType = "mcq"
	QuestionFIB        QuestionType = "fib"
)

// CodingMeta carries the function signature and test cases for a coding question.
type CodingMeta struct {
	FunctionName string   `json:"functionName"`
	Signature    string   `json:"signature"`
	Tests        []string `json:"tests,omitempty"`
}

// MCQMeta carries the option list for a multiple-choice question.
type MCQMeta struct {
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
}

// FIBMeta carries the slot labels for a fill-in-the-blank question.
type FIBMeta struct {
	SlotLabels []string `json:"slotLabels"`
}

// Question is an immutable record created exclusively by the AI Proxy via
// the State Machine (spec §3).
type Question struct {
	ID        string
	SessionID string
	Ordinal   int
	Type      QuestionType
	Text      string

	Coding *CodingMeta `json:"coding,omitempty"`
	MCQ    *MCQMeta    `json:"mcq,omitempty"`
	FIB    *FIBMeta    `json:"fib,omitempty"`

	CreatedAt time.Time
}
