package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Ananth-NQI/whatsapp-relay/internal/config"
	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
)

var errEmptyCompletion = errors.New("empty completion")

// OpenAIResponder generates bot replies with the chat completions API
type OpenAIResponder struct {
	client       *openai.Client
	model        string
	systemPrompt string
	temperature  float32
}

// NewOpenAIResponder creates the responder. BaseURL points it at any
// OpenAI-compatible endpoint.
func NewOpenAIResponder(cfg config.OpenAIConfig) (*OpenAIResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	prompt := cfg.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = config.DefaultSystemPrompt
	}

	return &OpenAIResponder{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        model,
		systemPrompt: prompt,
		temperature:  cfg.Temperature,
	}, nil
}

func (r *OpenAIResponder) GenerateReply(ctx context.Context, inboundText string, history []models.Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: r.systemPrompt,
	})
	for _, m := range history {
		if m.Text == "" {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    historyRole(m.Sender),
			Content: m.Text,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: inboundText,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    msgs,
		Temperature: r.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", errEmptyCompletion)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("openai: %w", errEmptyCompletion)
	}
	return reply, nil
}

// historyRole maps who wrote a message to the chat role the model sees.
// Operator replies count as the assistant side of the conversation.
func historyRole(sender models.Sender) string {
	if sender == models.SenderClient {
		return openai.ChatMessageRoleUser
	}
	return openai.ChatMessageRoleAssistant
}
