// Package review asks a language model for an advisory opinion on a kept diff.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/codepatrol/internal/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// maxDiffBytes bounds the diff sent for review.
const maxDiffBytes = 60 * 1024

const systemPrompt = `You review code changes made by an automated remediation agent.
Reply with one JSON object: {"verdict":"approve"|"concerns","notes":["short note", ...]}.
Use "concerns" when a change looks wrong, unsafe, or broader than needed.`

// Options configures the reviewer.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Reviewer calls an OpenAI-compatible chat completion endpoint.
type Reviewer struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// New creates a reviewer. An API key is required.
func New(opts Options, logger zerolog.Logger) (*Reviewer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("review: api key not set")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &Reviewer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With().Str("component", "review").Logger(),
	}, nil
}

// Review returns the model's verdict on diff. Errors mean no review; they
// never affect whether the diff is kept.
func (r *Reviewer) Review(ctx context.Context, diff string) (*models.QualityReview, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, errors.New("review: empty diff")
	}
	if len(diff) > maxDiffBytes {
		diff = diff[:maxDiffBytes] + "\n[diff truncated]"
	}

	req := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Review this diff:\n\n" + diff},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("review request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("review: model returned no choices")
	}

	qr, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	qr.Model = r.model

	r.logger.Debug().Str("verdict", qr.Verdict).Int("notes", len(qr.Notes)).Msg("review finished")
	return qr, nil
}

func parseVerdict(content string) (*models.QualityReview, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw struct {
		Verdict string   `json:"verdict"`
		Notes   []string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("review: unparseable verdict: %w", err)
	}

	qr := &models.QualityReview{Verdict: models.VerdictConcerns, Notes: raw.Notes}
	if strings.EqualFold(strings.TrimSpace(raw.Verdict), models.VerdictApprove) {
		qr.Verdict = models.VerdictApprove
	}
	if qr.Notes == nil {
		qr.Notes = []string{}
	}
	return qr, nil
}
