package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

const (
	defaultModel   = "gpt-4o-mini"
	requestTimeout = 15 * time.Second

	systemPrompt = `You triage reputation attacks against a crypto trust network user.
Given one negative event, reply with ONE short line (max 20 words) assessing severity and whether it looks like a coordinated attack, spam, or a genuine dispute.
No preamble, no markdown.`
)

// Client produces one-line triage notes through any OpenAI-compatible chat API
type Client struct {
	client *openai.Client
	model  string
	log    *logger.Logger
}

// NewClient creates a triage client. baseURL and model may be empty for the
// OpenAI defaults.
func NewClient(apiKey, baseURL, model string, log *logger.Logger) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		log:    log.With("component", "triage"),
	}
}

// Annotate returns a one-line severity note for the alert
func (c *Client) Annotate(ctx context.Context, p *domain.AlertPayload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: describeEvent(p)},
		},
		Temperature: 0.1,
		MaxTokens:   60,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	note := strings.TrimSpace(resp.Choices[0].Message.Content)
	if i := strings.IndexByte(note, '\n'); i >= 0 {
		note = note[:i]
	}
	return note, nil
}

func describeEvent(p *domain.AlertPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Event: %s\n", p.Type)
	fmt.Fprintf(&sb, "Target: %s (%s)\n", p.TargetName, p.TargetKey)
	if p.AuthorName != "" || p.AuthorKey != "" {
		fmt.Fprintf(&sb, "Author: %s (%s)\n", p.AuthorName, p.AuthorKey)
	}
	if p.Type != domain.AlertUnvouch {
		fmt.Fprintf(&sb, "Score: %+d\n", p.Score)
	}
	if p.Comment != "" {
		comment := p.Comment
		if len(comment) > 400 {
			comment = comment[:400] + "..."
		}
		fmt.Fprintf(&sb, "Comment: %s\n", comment)
	}
	return sb.String()
}
