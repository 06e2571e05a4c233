package source

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI streams completions from the OpenAI chat completions API, or
// any OpenAI-compatible backend via a custom base URL (DeepSeek, Groq,
// Ollama, LM Studio, ...).
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-compatible stream source. baseURL may be
// empty for the default endpoint.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Open implements Source.
func (o *OpenAI) Open(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunkCh := make(chan Chunk, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		model := o.model
		if req.Model != "" {
			model = req.Model
		}

		msgs := []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		}
		if req.Resume != "" {
			msgs = append(msgs,
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: tailOf(req.Resume)},
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: continuationPrompt},
			)
		}

		stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    model,
			Messages: msgs,
			Stream:   true,
		})
		if err != nil {
			trySendErr(errCh, wrapProviderError("openai", err))
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || strings.Contains(err.Error(), "EOF") {
					select {
					case chunkCh <- Chunk{Done: true}:
					case <-ctx.Done():
					}
					return
				}
				trySendErr(errCh, wrapProviderError("openai", err))
				return
			}

			for _, choice := range response.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case chunkCh <- Chunk{Text: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return chunkCh, errCh
}
