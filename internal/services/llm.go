package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"github.com/teampulse/insight/internal/config"
	"github.com/teampulse/insight/pkg/logger"
	"google.golang.org/genai"
)

// Completer sends one prompt to a generative backend and returns its text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Provider() string
}

// LLMClient talks to one configured provider.
type LLMClient struct {
	cfg config.LLMConfig
}

func NewLLMClient(cfg config.LLMConfig) *LLMClient {
	return &LLMClient{cfg: cfg}
}

func (c *LLMClient) Provider() string {
	if c.cfg.Provider == "" {
		return "openai"
	}
	return c.cfg.Provider
}

func (c *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	logger.Debug().Str("provider", c.Provider()).Str("model", c.cfg.Model).Int("prompt_len", len(prompt)).Msg("[LLM] Request")

	switch c.cfg.Provider {
	case "anthropic":
		return c.callAnthropic(ctx, prompt)
	case "ollama":
		return c.callOllama(ctx, prompt)
	case "gemini":
		return c.callGemini(ctx, prompt)
	case "azure":
		return c.callAzure(ctx, prompt)
	default:
		// openai and other OpenAI-compatible services
		return c.callOpenAI(ctx, prompt)
	}
}

func (c *LLMClient) temperature() float32 {
	if c.cfg.Temperature > 0 {
		return float32(c.cfg.Temperature)
	}
	return 0.3
}

// callOpenAI handles OpenAI and OpenAI-compatible APIs (including custom endpoints)
func (c *LLMClient) callOpenAI(ctx context.Context, prompt string) (string, error) {
	clientConfig := openai.DefaultConfig(c.cfg.APIKey)
	if c.cfg.BaseURL != "" {
		clientConfig.BaseURL = c.cfg.BaseURL
	}
	return c.chatCompletion(ctx, openai.NewClientWithConfig(clientConfig), "OpenAI", prompt)
}

// callAzure uses Model as the deployment name; BaseURL is https://{resource}.openai.azure.com
func (c *LLMClient) callAzure(ctx context.Context, prompt string) (string, error) {
	clientConfig := openai.DefaultAzureConfig(c.cfg.APIKey, c.cfg.BaseURL)
	return c.chatCompletion(ctx, openai.NewClientWithConfig(clientConfig), "Azure OpenAI", prompt)
}

func (c *LLMClient) chatCompletion(ctx context.Context, client *openai.Client, name, prompt string) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.temperature(),
	})
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", name)
	}
	return resp.Choices[0].Message.Content, nil
}

// callAnthropic handles Anthropic Claude API using the native SDK
func (c *LLMClient) callAnthropic(ctx context.Context, prompt string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(c.cfg.APIKey)}
	if c.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(c.cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}
	model := c.cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return content.String(), nil
}

// callOllama handles Ollama API using the native SDK
func (c *LLMClient) callOllama(ctx context.Context, prompt string) (string, error) {
	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := c.cfg.Model
	if model == "" {
		model = "llama3"
	}

	stream := false
	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model:    model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": c.temperature(),
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama API error: %w", err)
	}
	return content.String(), nil
}

// callGemini handles Google Gemini API using the native SDK
func (c *LLMClient) callGemini(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := c.cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return resp.Text(), nil
}
