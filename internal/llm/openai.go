package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultModel = "gpt-4o-2024-08-06"

type OpenAIConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	Timeout          time.Duration
	StructuredOutput bool
}

type OpenAI struct {
	client     openai.Client
	model      string
	structured bool
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := openai.NewClient(
		option.WithBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")+"/"),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	)
	return &OpenAI{client: client, model: model, structured: cfg.StructuredOutput}, nil
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	kind := KindText
	if req.Schema != nil && o.structured {
		kind = KindStructured
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Schema.Name,
					Description: openai.String(req.Schema.Description),
					Schema:      req.Schema.Definition,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("request chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("empty chat completion choices")
	}
	choice := completion.Choices[0]
	if choice.Message.Refusal != "" {
		return Response{}, fmt.Errorf("model refused: %s", choice.Message.Refusal)
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return Response{}, fmt.Errorf("model returned empty content")
	}
	return Response{Kind: kind, Content: content, Model: o.model}, nil
}

func (o *OpenAI) Structured() bool {
	return o.structured
}
