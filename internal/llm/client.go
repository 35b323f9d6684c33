// Package llm generates assistant replies via an OpenAI-compatible chat API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ent0n29/ragchat/internal/chatstore"
)

// Config holds generation settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	CompanyName string
	Temperature float32
	MaxTokens   int
}

// Client wraps the chat-completion API with this service's prompt shape.
type Client struct {
	client       *openai.Client
	model        string
	temperature  float32
	maxTokens    int
	systemPrompt string
}

func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	return &Client{
		client:       openai.NewClientWithConfig(apiCfg),
		model:        cfg.Model,
		temperature:  temperature,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: buildSystemPrompt(cfg.CompanyName),
	}
}

func buildSystemPrompt(companyName string) string {
	if strings.TrimSpace(companyName) == "" {
		companyName = "our company"
	}
	return fmt.Sprintf(`You are a helpful and knowledgeable AI assistant for %s.

Your responsibilities:
- Provide accurate and helpful information based on the context provided
- Be polite, professional, and empathetic in all interactions
- If you don't know something, admit it rather than making up information
- Use the retrieved context to answer questions accurately
- Keep responses clear, concise, and relevant`, companyName)
}

// buildEnhancedPrompt merges the retrieved knowledge context with the query.
func buildEnhancedPrompt(context, query string) string {
	var b strings.Builder
	if strings.TrimSpace(context) != "" {
		b.WriteString("RELEVANT CONTEXT (use this to answer the question):\n")
		b.WriteString(context)
		b.WriteString("\n\n")
	}
	b.WriteString("USER QUERY:\n")
	b.WriteString(query)
	b.WriteString("\n\nPlease provide a helpful and accurate response based on the context provided above. If the context doesn't contain relevant information, use your general knowledge but mention that you're doing so.")
	return b.String()
}

// formatMessages maps stored history plus the enhanced prompt onto the chat
// API message shape. Stored BOT turns become assistant messages.
func (c *Client) formatMessages(history []chatstore.Message, knowledgeContext, query string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.systemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == chatstore.RoleBot {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: buildEnhancedPrompt(knowledgeContext, query),
	})
	return msgs
}

// GenerateReply produces one assistant reply for the query, grounded in the
// conversation history and the retrieved knowledge context.
func (c *Client) GenerateReply(ctx context.Context, history []chatstore.Message, knowledgeContext, query string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.formatMessages(history, knowledgeContext, query),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamReply generates a reply and feeds each text delta to emit as it
// arrives. emit returning an error aborts the stream.
func (c *Client) StreamReply(ctx context.Context, history []chatstore.Message, knowledgeContext, query string, emit func(delta string) error) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.formatMessages(history, knowledgeContext, query),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("create chat completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive stream delta: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := emit(delta); err != nil {
			return err
		}
	}
}

const moderationPrompt = `Analyze the following message for toxicity, harassment, hate speech, or extremely offensive content.
Respond with ONLY "SAFE" or "UNSAFE".

Message: %q

Response:`

// Moderate asks the model whether a message is safe to answer.
func (c *Client) Moderate(ctx context.Context, message string) (bool, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(moderationPrompt, message)},
		},
		MaxTokens: 8,
	})
	if err != nil {
		return false, fmt.Errorf("moderation completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("moderation returned no choices")
	}
	verdict := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))
	return !strings.Contains(verdict, "UNSAFE"), nil
}
