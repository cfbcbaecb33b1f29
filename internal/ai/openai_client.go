package ai

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const draftPrompt = `You draft replies for support staff in a seller-client chat.
You are given the recent conversation; the last user message is the one to answer.
Write a short, polite draft the staff member can edit and send.
If the conversation gives you nothing to answer, reply with an empty string.
Plain text only, no markdown, no preamble.`

type OpenAISuggester struct {
	client *openai.Client
	model  string
}

func NewOpenAISuggester(apiKey, model string) *OpenAISuggester {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAISuggester{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (c *OpenAISuggester) Suggest(ctx context.Context, history []Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: draftPrompt,
	})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
