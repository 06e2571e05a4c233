package source

import (
	"context"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// Anthropic streams completions from the Anthropic Messages API. The
// SDK exposes callback-based streaming, which is adapted to the Chunk
// channel contract here.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic creates an Anthropic stream source.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client:    anthropic.NewClient(apiKey),
		model:     model,
		maxTokens: 4096,
	}
}

// Open implements Source.
func (a *Anthropic) Open(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunkCh := make(chan Chunk, 10) // Buffered to avoid blocking callbacks
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		model := a.model
		if req.Model != "" {
			model = req.Model
		}

		msgs := []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)},
			},
		}
		if req.Resume != "" {
			// Replay the confirmed tail as an assistant prefill so the
			// model continues without duplicating prior output.
			msgs = append(msgs,
				anthropic.Message{
					Role:    anthropic.RoleAssistant,
					Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(tailOf(req.Resume))},
				},
				anthropic.Message{
					Role:    anthropic.RoleUser,
					Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(continuationPrompt)},
				},
			)
		}

		streamReq := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:     anthropic.Model(model),
				Messages:  msgs,
				MaxTokens: a.maxTokens,
			},
		}

		streamReq.OnError = func(errResp anthropic.ErrorResponse) {
			if errResp.Error != nil {
				trySendErr(errCh, &streamFailure{provider: "anthropic", message: errResp.Error.Message})
			}
		}

		streamReq.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				select {
				case chunkCh <- Chunk{Text: *delta.Delta.Text}:
				case <-ctx.Done():
				}
			}
		}

		_, err := a.client.CreateMessagesStream(ctx, streamReq)
		if err != nil {
			trySendErr(errCh, wrapProviderError("anthropic", err))
			return
		}

		select {
		case chunkCh <- Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return chunkCh, errCh
}
