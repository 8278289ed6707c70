package llm

import (
	"context"
	"fmt"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
	BaseURL         string // Ollama server URL
}

// ChatEngine is the opaque text-completion provider. It receives the
// assembled context verbatim and adds nothing of its own.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := withChatDefaults(config)
	if err != nil {
		return nil, err
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	config, err := withChatDefaults(config)
	if err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: model}, nil
}

func withChatDefaults(config ChatConfig) (ChatConfig, error) {
	// Validate and set default values for config fields if necessary
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return config, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "당신은 한국 노동법 상담을 돕는 어시스턴트입니다. 제공된 참고 자료에 근거해 답하고, 자료에 없는 내용은 추측하지 마세요."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "참고 자료:\n%s\n\n질문: %s"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return config, nil
}

func (ce *ChatEngine) messages(query models.Query, bundle models.ContextBundle) []llms.MessageContent {
	human := query.Text
	if bundle.PromptText != "" {
		human = fmt.Sprintf(ce.config.ContextTemplate, bundle.PromptText, query.Text)
	}

	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman, human),
	}
}

// Answer generates a response grounded on bundle. An empty bundle sends the
// question alone.
func (ce *ChatEngine) Answer(ctx context.Context, query models.Query, bundle models.ContextBundle) (string, error) {
	response, err := ce.llm.GenerateContent(ctx, ce.messages(query, bundle),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 {
		return "", fmt.Errorf("chat error: no response from LLM")
	}

	return response.Choices[0].Content, nil
}

// AnswerStream streams response chunks. The channel is closed when the
// provider finishes; a failure arrives as a final "Error: " chunk.
func (ce *ChatEngine) AnswerStream(ctx context.Context, query models.Query, bundle models.ContextBundle) <-chan string {
	resultChan := make(chan string)

	go func() {
		defer close(resultChan)

		_, err := ce.llm.GenerateContent(ctx, ce.messages(query, bundle),
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithTemperature(ce.config.Temperature),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case resultChan <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)
		if err != nil {
			select {
			case resultChan <- fmt.Sprintf("Error: %v", err):
			case <-ctx.Done():
			}
		}
	}()

	return resultChan
}
