// Package aiproxy implements the AI Proxy (spec §4.5): question
// generation and summary synthesis behind a provider-agnostic interface,
// with a deterministic fallback that keeps the platform usable when the
// upstream model is slow, erroring, or disabled. Grounded on the
// Provider-interface-plus-swappable-implementation shape shown in
// other_examples/b6ac3322_mfateev-codex-temporal-go__internal-llm-anthropic_test.go.go
// (an AnthropicClient behind an LLM-call contract), adapted here so the
// same contract is also satisfied by a non-AI fallback.
package aiproxy

import (
	"context"

	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
)

// QuestionRequest carries what the provider needs to draft the next question.
type QuestionRequest struct {
	Session   domain.Session
	Asked     []domain.Question
	Answers   []domain.Answer
	NextMode  domain.Mode
}

// SummaryRequest carries what the provider needs to synthesize a summary.
type SummaryRequest struct {
	Session domain.Session
	Asked   []domain.Question
	Answers []domain.Answer
	Strikes []domain.Strike
}

// FeedbackRequest carries what the provider needs for immediate per-answer
// feedback (spec §13 supplemental feature).
type FeedbackRequest struct {
	Question domain.Question
	Answer   domain.Answer
}

// Feedback is the immediate, single-question assessment returned right
// after an answer is submitted, ahead of the final summary.
type Feedback struct {
	Score   int      `json:"score"`
	Comment string   `json:"comment"`
	Tags    []string `json:"tags,omitempty"`
}

// Provider is the contract both the real model-backed client and the
// deterministic fallback satisfy, so callers never branch on which one is
// live (spec §4.5's fallback-transparency property).
type Provider interface {
	GenerateQuestion(ctx context.Context, req QuestionRequest) (domain.Question, error)
	GenerateFeedback(ctx context.Context, req FeedbackRequest) (Feedback, error)
	GenerateSummary(ctx context.Context, req SummaryRequest) (domain.Summary, error)
}
