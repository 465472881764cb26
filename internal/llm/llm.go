// Package llm drafts answer explanations for bank questions through an
// OpenAI-compatible chat API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/exambank/internal/llm/prompts"
	"github.com/pavelanni/exambank/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNotExplainable is returned for questions without answer options.
var ErrNotExplainable = errors.New("only option-based questions can be explained")

// Explanation is a drafted explanation for a bank question.
type Explanation struct {
	QuestionID    string `json:"question_id"`
	Explanation   string `json:"explanation"`
	CorrectAnswer string `json:"correct_answer"`
	// AgreesWithKey is false when the model picked a different option than
	// the stored answer key.
	AgreesWithKey bool   `json:"agrees_with_key"`
	Variant       string `json:"variant"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.Variant
	prompts *prompts.Set
}

// New creates a new LLM client. An unknown variant falls back to standard.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	set, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidVariant(variant) {
		slog.Warn("unknown explain variant, using standard", "variant", variant)
		variant = string(prompts.Standard)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.Variant(variant),
		prompts: set,
	}, nil
}

// Enabled reports whether the client can be used. A nil client is disabled.
func (c *Client) Enabled() bool {
	return c != nil && c.api != nil
}

// Explain drafts an explanation for an option-based bank question.
func (c *Client) Explain(ctx context.Context, q model.BankQuestion) (*Explanation, error) {
	if q.MCQ == nil {
		return nil, ErrNotExplainable
	}
	prompt, err := c.prompts.BuildExplainPrompt(c.variant, q)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question", q.ID, "raw", raw)

	var out Explanation
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	out.Explanation = strings.TrimSpace(out.Explanation)
	if out.Explanation == "" {
		return nil, fmt.Errorf("LLM returned an empty explanation")
	}
	out.QuestionID = q.ID
	out.Variant = string(c.variant)
	out.CorrectAnswer = strings.ToUpper(strings.TrimSpace(out.CorrectAnswer))
	if out.CorrectAnswer == "" {
		out.CorrectAnswer = q.MCQ.CorrectAnswer
	}
	out.AgreesWithKey = out.CorrectAnswer == q.MCQ.CorrectAnswer
	if !out.AgreesWithKey {
		slog.Warn("LLM disagrees with answer key", "question", q.ID, "key", q.MCQ.CorrectAnswer, "llm", out.CorrectAnswer)
	}
	return &out, nil
}

// Ping checks that the API is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
