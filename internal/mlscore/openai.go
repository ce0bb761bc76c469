package mlscore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You assess government oversight events for escalation risk. " +
	"Reply with a JSON object: {\"overall_score\": number 0-1, \"overall_risk\": \"low|medium|high|critical\", \"confidence\": number 0-1}."

// OpenAIScorer scores events with an OpenAI chat model in JSON mode
type OpenAIScorer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIScorer creates a scorer from config
func NewOpenAIScorer(cfg model.MLConfig) (*OpenAIScorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	m := cfg.Model
	if m == "" {
		m = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIScorer{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   m,
		timeout: timeout,
	}, nil
}

func (s *OpenAIScorer) Name() string {
	return "openai"
}

func (s *OpenAIScorer) Score(ctx context.Context, req Request) (*model.MLAssessment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		MaxTokens:      200,
		Temperature:    0,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	var a model.MLAssessment
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &a); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	if err := validate(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

// buildPrompt bounds content so one long report cannot blow the token budget
func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source type: %s\n", req.SourceType)
	fmt.Fprintf(&b, "Title: %s\n\n", req.Title)
	b.WriteString(model.Truncate(req.Content, 6000))
	return b.String()
}
