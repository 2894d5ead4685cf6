package provider

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	oai "github.com/openai/openai-go/v2"
	oaiopt "github.com/openai/openai-go/v2/option"
	"google.golang.org/genai"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// LLMProvider is the text-completion surface consumed by QueryExpander,
// ResultSynthesizer, and FollowUpGenerator.
type LLMProvider interface {
	Provider
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIProvider wraps the Chat Completions API.
type OpenAIProvider struct {
	id     string
	model  string
	client oai.Client
}

// NewOpenAIProvider reads its API key from env; IsAvailable reports
// whether the key is present.
func NewOpenAIProvider(model string) *OpenAIProvider {
	return &OpenAIProvider{
		id:     "openai",
		model:  model,
		client: oai.NewClient(oaiopt.WithAPIKey(os.Getenv("OPENAI_API_KEY"))),
	}
}

func (p *OpenAIProvider) ID() string   { return p.id }
func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	return os.Getenv("OPENAI_API_KEY") != ""
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", cerr.Wrap(cerr.ErrCodeNetwork, err)
	}
	if len(resp.Choices) == 0 {
		return "", cerr.New(cerr.ErrCodeModelNotFound, "openai returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// AnthropicProvider wraps the Messages API.
type AnthropicProvider struct {
	id     string
	model  string
	client anthropic.Client
}

func NewAnthropicProvider(model string) *AnthropicProvider {
	return &AnthropicProvider{
		id:     "anthropic",
		model:  model,
		client: anthropic.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY"))),
	}
}

func (p *AnthropicProvider) ID() string   { return p.id }
func (p *AnthropicProvider) Name() string { return "anthropic:" + p.model }

func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	return os.Getenv("ANTHROPIC_API_KEY") != ""
}

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", cerr.Wrap(cerr.ErrCodeNetwork, err)
	}
	if len(msg.Content) == 0 {
		return "", cerr.New(cerr.ErrCodeModelNotFound, "anthropic returned no content blocks", nil)
	}
	return msg.Content[0].Text, nil
}

// GeminiProvider wraps Google's genai SDK.
type GeminiProvider struct {
	id    string
	model string
}

func NewGeminiProvider(model string) *GeminiProvider {
	return &GeminiProvider{id: "gemini", model: model}
}

func (p *GeminiProvider) ID() string   { return p.id }
func (p *GeminiProvider) Name() string { return "gemini:" + p.model }

func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	return os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != ""
}

func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: os.Getenv("GEMINI_API_KEY")})
	if err != nil {
		return "", cerr.Wrap(cerr.ErrCodeNetwork, err)
	}
	resp, err := client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", cerr.Wrap(cerr.ErrCodeNetwork, err)
	}
	text := resp.Text()
	if text == "" {
		return "", cerr.New(cerr.ErrCodeModelNotFound, "gemini returned empty response", nil)
	}
	return text, nil
}
