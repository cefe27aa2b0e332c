package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber converts an audio file on disk to text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// AudioClient is the go-openai method the Whisper transcriber uses.
type AudioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperTranscriber transcribes audio through the OpenAI audio API.
type WhisperTranscriber struct {
	client AudioClient
	model  string
}

// NewWhisperTranscriber builds a transcriber; an empty model uses whisper-1.
func NewWhisperTranscriber(client AudioClient, model string) *WhisperTranscriber {
	if client == nil {
		panic("media: openai client cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model}
}

// Transcribe uploads the file at path and returns the transcript.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("media: audio path required")
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("media: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
