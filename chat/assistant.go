package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/adityadaniel/flora-friend/app/models"
)

// Completer is satisfied by *openai.Client.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Assistant answers plant questions through a chat-completions model.
type Assistant struct {
	client Completer
	model  string
}

func NewAssistant(client Completer, model string) *Assistant {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Assistant{client: client, model: model}
}

func (a *Assistant) Reply(ctx context.Context, record models.PlantRecord, history []models.ChatMessage, text string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(record)})
	for _, m := range history {
		role := openai.ChatMessageRoleAssistant
		if m.FromUser {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// SystemPrompt pins the assistant to one plant.
func SystemPrompt(p models.PlantRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful plant care assistant. You are currently helping with questions about a %s (%s).\n\n", p.CommonName, p.ScientificName)
	b.WriteString("Plant Details:\n")
	fmt.Fprintf(&b, "- Common Name: %s\n", p.CommonName)
	fmt.Fprintf(&b, "- Scientific Name: %s\n", p.ScientificName)
	fmt.Fprintf(&b, "- Description: %s\n", p.Description)
	fmt.Fprintf(&b, "- Care Level: %s\n", p.Care.Difficulty)
	fmt.Fprintf(&b, "- Light Requirements: %s\n", p.Care.Light)
	fmt.Fprintf(&b, "- Water Requirements: %s\n", p.Care.Water)
	fmt.Fprintf(&b, "- Soil Requirements: %s\n", p.Care.Soil)
	fmt.Fprintf(&b, "- Temperature: %s\n", p.Care.Temperature)
	fmt.Fprintf(&b, "- Humidity: %s\n", p.Care.Humidity)
	fmt.Fprintf(&b, "- Fertilizer: %s\n", p.Care.Fertilizer)
	fmt.Fprintf(&b, "- Height: %s\n", p.Characteristics.Height)
	fmt.Fprintf(&b, "- Flowering: %s\n", p.Characteristics.Flowering)
	fmt.Fprintf(&b, "- Leaf Details: %s\n", p.Characteristics.LeafDetails)
	fmt.Fprintf(&b, "- Habitat: %s\n", p.Habitat)
	fmt.Fprintf(&b, "- Origin: %s\n", p.Origin)
	fmt.Fprintf(&b, "- Toxic to Humans: %s\n", yesNo(p.Safety.ToxicToHumans))
	fmt.Fprintf(&b, "- Toxic to Pets: %s\n\n", yesNo(p.Safety.ToxicToPets))
	b.WriteString(`IMPORTANT RULES:
1. Only answer questions related to this specific plant or general plant care
2. If asked about anything unrelated to plants or plant care, politely redirect the conversation back to the plant
3. Use the provided plant information to give accurate, helpful advice
4. Keep responses concise and practical
5. If you don't have specific information about this plant, provide general plant care advice but mention it's general guidance

Be friendly, helpful, and knowledgeable about plant care.`)
	return b.String()
}
