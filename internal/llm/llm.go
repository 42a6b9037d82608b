package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dalton-wilson/CBM/internal/llm/prompts"
	"github.com/dalton-wilson/CBM/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Summary is the model's plain-language reading of a report's
// recommendations.
type Summary struct {
	Text  string   `json:"summary"`
	Focus []string `json:"focus"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api      *openai.Client
	model    string
	audience prompts.Audience
}

// New creates a new LLM client. An unknown audience falls back to the
// teacher audience.
func New(baseURL, apiKey, modelName, audience string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	a := prompts.Audience(audience)
	if !prompts.IsValidAudience(audience) {
		slog.Warn("invalid summary audience, using teacher", "audience", audience)
		a = prompts.AudienceTeacher
	}
	return &Client{
		api:      openai.NewClientWithConfig(config),
		model:    modelName,
		audience: a,
	}
}

// Ping checks that the endpoint answers and serves the configured model.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.GetModel(ctx, c.model); err != nil {
		return fmt.Errorf("LLM model %s: %w", c.model, err)
	}
	return nil
}

// Summarize asks the model to explain a report's recommendations. A report
// without recommendations is answered locally.
func (c *Client) Summarize(ctx context.Context, rep model.ReportSummary, title, header string) (*Summary, error) {
	if len(rep.Recommendations) == 0 {
		return &Summary{}, nil
	}
	prompt, err := prompts.BuildSummaryPrompt(c.audience, summaryData(rep, title, header))
	if err != nil {
		return nil, fmt.Errorf("build summary prompt: %w", err)
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
	slog.Debug("LLM response", "report", rep.Name, "raw", raw)
	return parseSummary(raw)
}

func parseSummary(raw string) (*Summary, error) {
	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	if s.Text == "" {
		return nil, fmt.Errorf("LLM response has no summary (raw: %s)", raw)
	}
	return &s, nil
}

func summaryData(rep model.ReportSummary, title, header string) prompts.SummaryData {
	return prompts.SummaryData{
		Title:           title,
		GradeLevel:      rep.GradeLevel,
		Subject:         string(rep.Subject),
		Student:         rep.Student,
		Header:          header,
		Recommendations: rep.Recommendations,
	}
}
