package identify

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/adityadaniel/flora-friend/app/models"
)

const identifyPrompt = "You are a plant identification expert. Analyze the provided plant image and return detailed information in the specified JSON format. Be accurate and comprehensive in your identification."

// Completer is the part of the OpenAI client used here. *openai.Client
// satisfies it.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient builds a client for an OpenAI-compatible endpoint. An
// empty baseURL keeps the public API.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(cfg)
}

type Identifier struct {
	client  Completer
	model   string
	maxDim  int
	quality int
	now     func() time.Time
}

func NewIdentifier(client Completer, model string, maxDim, quality int) *Identifier {
	if model == "" {
		model = openai.GPT4o
	}
	return &Identifier{
		client:  client,
		model:   model,
		maxDim:  maxDim,
		quality: quality,
		now:     time.Now,
	}
}

// Identify prepares the image, sends one vision request and maps the
// validated answer. It never retries. The returned record carries the
// re-encoded JPEG and no owner; the caller persists it.
func (i *Identifier) Identify(ctx context.Context, image []byte) (models.Identification, error) {
	prepared, err := PrepareImage(image, i.maxDim, i.quality)
	if err != nil {
		return models.Identification{}, err
	}

	req := openai.ChatCompletionRequest{
		Model: i.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: identifyPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL(prepared),
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   SchemaName,
				Schema: Schema(),
				Strict: true,
			},
		},
	}

	start := time.Now()
	resp, err := i.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return models.Identification{}, ctx.Err()
		}
		classified := classifyProviderError(err)
		log.Printf("identify: vision call failed model=%s took=%s err=%v", i.model, time.Since(start), classified)
		return models.Identification{}, classified
	}
	if len(resp.Choices) == 0 {
		return models.Identification{}, &DecodingError{Err: errors.New("no choices in response")}
	}

	decoded, err := Decode([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		log.Printf("identify: decode failed model=%s err=%v", i.model, err)
		return models.Identification{}, err
	}
	return ToRecord(decoded, prepared, i.now()), nil
}
