package aiproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/policy"
)

// AnthropicProvider calls the real model for question/feedback/summary
// generation, asking it to reply with a single JSON object so the
// provider never has to parse free-form prose. Grounded on the
// client-construction and Messages.New call shape of
// other_examples/b6ac3322_mfateev-codex-temporal-go__internal-llm-anthropic_test.go.go.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider builds a provider over the given API key and model.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *AnthropicProvider) call(ctx context.Context, system, user string) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", apierrors.ProviderUnavailable(err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", apierrors.ProviderUnavailable(fmt.Errorf("model returned no text content"))
}

// extractJSON trims any prose fencing the model added around a JSON object.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func (p *AnthropicProvider) GenerateQuestion(ctx context.Context, req QuestionRequest) (domain.Question, error) {
	system := "You are an interview question generator for a mock-interview platform. " +
		"Reply with exactly one JSON object: {\"type\":\"behavioral|coding|scenario\",\"text\":\"...\"}. No prose."
	user := fmt.Sprintf("Role: %s. Mode: %s. Questions asked so far: %d. Difficulty: %s.",
		req.Session.Config.RoleCategory, req.NextMode, len(req.Asked), req.Session.Config.Difficulty)

	raw, err := p.call(ctx, system, user)
	if err != nil {
		return domain.Question{}, err
	}

	var decoded struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &decoded); err != nil {
		return domain.Question{}, apierrors.ProviderUnavailable(fmt.Errorf("decode model question: %w", err))
	}

	q := domain.Question{Type: domain.QuestionType(decoded.Type), Text: decoded.Text}
	if q.Type == "" {
		q.Type = modeToQuestionType(req.NextMode)
	}
	return q, nil
}

func (p *AnthropicProvider) GenerateFeedback(ctx context.Context, req FeedbackRequest) (Feedback, error) {
	system := "You grade one interview answer. Reply with exactly one JSON object: " +
		"{\"score\":0-100,\"comment\":\"...\",\"tags\":[\"...\"]}. No prose."
	user := fmt.Sprintf("Question: %s\nAnswer: %s", req.Question.Text, req.Answer.Text)

	raw, err := p.call(ctx, system, user)
	if err != nil {
		return Feedback{}, err
	}
	var fb Feedback
	if err := json.Unmarshal([]byte(extractJSON(raw)), &fb); err != nil {
		return Feedback{}, apierrors.ProviderUnavailable(fmt.Errorf("decode model feedback: %w", err))
	}
	return fb, nil
}

func (p *AnthropicProvider) GenerateSummary(ctx context.Context, req SummaryRequest) (domain.Summary, error) {
	system := "You write a final interview summary. Reply with exactly one JSON object: " +
		"{\"subScores\":{\"communication\":0-100,\"technical\":0-100,\"problemSolving\":0-100}," +
		"\"strengths\":[\"...\"],\"gaps\":[\"...\"],\"review\":[{\"questionId\":\"...\",\"ordinal\":1,\"summary\":\"...\",\"score\":0-100}]}. No prose."

	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s.\n", req.Session.Config.RoleCategory)
	for _, q := range req.Asked {
		fmt.Fprintf(&b, "Q%d (%s): %s\n", q.Ordinal, q.Type, q.Text)
	}
	for _, a := range req.Answers {
		fmt.Fprintf(&b, "Answer to %s: %s\n", a.QuestionID, a.Text)
	}

	raw, err := p.call(ctx, system, b.String())
	if err != nil {
		return domain.Summary{}, err
	}

	var decoded struct {
		SubScores domain.SubScores   `json:"subScores"`
		Strengths []string           `json:"strengths"`
		Gaps      []string           `json:"gaps"`
		Review    []domain.ReviewItem `json:"review"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &decoded); err != nil {
		return domain.Summary{}, apierrors.ProviderUnavailable(fmt.Errorf("decode model summary: %w", err))
	}

	verdict := domain.VerdictPass
	if req.Session.StrikeMajorCount > 0 {
		verdict = domain.VerdictFailed
	} else if req.Session.StrikeMinorCount > 0 {
		verdict = domain.VerdictWarning
	}

	return domain.Summary{
		SessionID:        req.Session.ID,
		SubScores:        decoded.SubScores,
		OverallScore:     policy.Overall(decoded.SubScores),
		Strengths:        decoded.Strengths,
		Gaps:             decoded.Gaps,
		Review:           decoded.Review,
		AntiCheatVerdict: verdict,
		StrikeTimeline:   req.Strikes,
		Fallback:         false,
	}, nil
}
