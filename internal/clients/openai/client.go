// Package openai wraps the OpenAI chat completions API as an opaque
// summarization capability: free-text narratives and structured batch
// sentiment analysis.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
)

const defaultModel = "gpt-4o-mini"

// ErrBadResponse marks model output that failed strict validation.
// Callers must not retry it and must not persist partial results.
var ErrBadResponse = errors.New("malformed model response")

// Client is an OpenAI API client.
type Client struct {
	client openai.Client
	model  string
	log    zerolog.Logger
}

// NewClient creates a new OpenAI client.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
		log:    log.With().Str("client", "openai").Logger(),
	}
}

// Summarize sends one system+user prompt pair and returns the raw text
// of the first choice.
func (c *Client) Summarize(ctx context.Context, system, user string) (string, error) {
	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.3),
		MaxTokens:   openai.Int(1000),
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	return response.Choices[0].Message.Content, nil
}

// AnalyzeSentiment runs one batch sentiment call over the given news
// items and parses the structured result. A response that is not the
// expected JSON shape is an error; callers treat it as permanent and
// persist nothing.
func (c *Client) AnalyzeSentiment(ctx context.Context, ticker string, items []domain.NewsItem) (*domain.SentimentAnalysis, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no news items to analyze")
	}

	prompt := buildSentimentPrompt(ticker, items)

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a financial sentiment analyst. Respond only with the requested JSON object."),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(500),
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	return parseSentimentAnalysis(response.Choices[0].Message.Content)
}

// buildSentimentPrompt renders one batch prompt over all items.
func buildSentimentPrompt(ticker string, items []domain.NewsItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Analyze the overall sentiment of these news items about %s.\n", ticker))
	sb.WriteString("Respond with JSON format:\n")
	sb.WriteString(`{"sentiment_score": -1.0 to 1.0, "sentiment_label": "positive|negative|neutral", "key_themes": ["theme1", "theme2"]}`)
	sb.WriteString("\n\nNews items:\n\n")

	for i, item := range items {
		sb.WriteString(fmt.Sprintf("Item %d:\n", i+1))
		sb.WriteString(fmt.Sprintf("Title: %s\n", item.Title))
		if item.Summary != "" {
			sb.WriteString(fmt.Sprintf("Summary: %s\n", item.Summary))
		}
		if item.Source != "" {
			sb.WriteString(fmt.Sprintf("Source: %s\n", item.Source))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// parseSentimentAnalysis parses the model output strictly. Markdown
// code fences around the JSON are tolerated; anything else fails.
func parseSentimentAnalysis(content string) (*domain.SentimentAnalysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var analysis domain.SentimentAnalysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	if analysis.Score < -1 || analysis.Score > 1 {
		return nil, fmt.Errorf("%w: sentiment_score %v out of range [-1, 1]", ErrBadResponse, analysis.Score)
	}
	if analysis.Label == "" {
		return nil, fmt.Errorf("%w: sentiment_label missing", ErrBadResponse)
	}

	return &analysis, nil
}
