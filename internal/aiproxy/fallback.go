package aiproxy

import (
	"context"
	"fmt"

	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/policy"
)

// bank holds a few canned prompts per mode, enough to keep a session moving
// when no model is available. Not meant to be exhaustive or exciting.
var bank = map[domain.Mode][]string{
	domain.ModeBehavioral: {
		"Tell me about a time you disagreed with a teammate. How did you resolve it?",
		"Describe a project that didn't go as planned. What did you do?",
		"Walk me through how you prioritize competing deadlines.",
	},
	domain.ModeCoding: {
		"Write a function that returns the first non-repeating character in a string.",
		"Given a list of intervals, merge all overlapping ones.",
		"Implement a function that checks whether a binary tree is balanced.",
	},
	domain.ModeScenario: {
		"A production service is returning elevated error rates. Walk me through your triage.",
		"Your team must cut scope a week before a launch. How do you decide what to drop?",
	},
	domain.ModeRandom: {
		"What's a tool or technique you've adopted recently that changed how you work?",
	},
}

// Fallback is a deterministic, non-AI Provider: no network calls, no
// randomness, stable output for the same input. Used when AI_PROVIDER is
// "none", or as the escape hatch when the real provider times out or
// errors (spec §4.5).
type Fallback struct{}

// NewFallback builds the deterministic fallback provider.
func NewFallback() *Fallback { return &Fallback{} }

func (f *Fallback) GenerateQuestion(_ context.Context, req QuestionRequest) (domain.Question, error) {
	pool := bank[req.NextMode]
	if len(pool) == 0 {
		pool = bank[domain.ModeRandom]
	}
	idx := len(req.Asked) % len(pool)
	q := domain.Question{
		Type: modeToQuestionType(req.NextMode),
		Text: pool[idx],
	}
	if q.Type == domain.QuestionCoding {
		q.Coding = &domain.CodingMeta{
			FunctionName: "solve",
			Signature:    "func solve(input string) string",
		}
	}
	return q, nil
}

func modeToQuestionType(m domain.Mode) domain.QuestionType {
	switch m {
	case domain.ModeCoding:
		return domain.QuestionCoding
	case domain.ModeScenario:
		return domain.QuestionScenario
	default:
		return domain.QuestionBehavioral
	}
}

// GenerateFeedback scores on a flat, effort-based heuristic: it rewards a
// substantive answer without attempting any real comprehension, since
// there is no model to ask.
func (f *Fallback) GenerateFeedback(_ context.Context, req FeedbackRequest) (Feedback, error) {
	length := len(req.Answer.Text) + len(req.Answer.Code) + len(req.Answer.LiveTranscript)
	score := 40
	switch {
	case length > 400:
		score = 75
	case length > 150:
		score = 60
	case length > 0:
		score = 50
	}
	return Feedback{
		Score:   score,
		Comment: "Automated fallback review: no live AI reviewer was available for this answer.",
		Tags:    []string{"fallback"},
	}, nil
}

// GenerateSummary produces a stable, honestly-labeled summary (Fallback:
// true) from whatever the session already recorded — strike counts and
// answer counts — rather than attempting any qualitative judgment.
func (f *Fallback) GenerateSummary(_ context.Context, req SummaryRequest) (domain.Summary, error) {
	answered := len(req.Answers)
	asked := len(req.Asked)

	completion := 0
	if asked > 0 {
		completion = answered * 100 / asked
	}

	sub := domain.SubScores{
		Communication:  completion,
		Technical:      completion,
		ProblemSolving: completion,
	}

	verdict := domain.VerdictPass
	if req.Session.StrikeMajorCount > 0 {
		verdict = domain.VerdictFailed
	} else if req.Session.StrikeMinorCount > 0 {
		verdict = domain.VerdictWarning
	}

	review := make([]domain.ReviewItem, 0, len(req.Asked))
	for _, q := range req.Asked {
		review = append(review, domain.ReviewItem{
			QuestionID: q.ID,
			Ordinal:    q.Ordinal,
			Summary:    fmt.Sprintf("Question %d (%s) recorded without AI review.", q.Ordinal, q.Type),
			Score:      completion,
		})
	}

	return domain.Summary{
		SessionID:        req.Session.ID,
		SubScores:        sub,
		OverallScore:     policy.Overall(sub),
		Strengths:        []string{fmt.Sprintf("Answered %d of %d questions.", answered, asked)},
		Gaps:             fallbackGaps(req),
		Review:           review,
		AntiCheatVerdict: verdict,
		StrikeTimeline:   req.Strikes,
		Fallback:         true,
	}, nil
}

func fallbackGaps(req SummaryRequest) []string {
	if len(req.Answers) < len(req.Asked) {
		return []string{"Not all questions were answered."}
	}
	return nil
}
