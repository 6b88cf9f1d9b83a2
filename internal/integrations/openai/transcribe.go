package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// ErrEmptyAudio is returned when Transcribe is handed no bytes.
var ErrEmptyAudio = errors.New("openai: audio payload is empty")

// Transcribe stages audio in a temp file, uploads it to the transcription
// endpoint and returns the trimmed text. The temp file is removed on every
// return path. An empty string means no usable speech was found.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	api, err := c.resolveAPI(ctx)
	if err != nil {
		return "", err
	}

	path, err := c.stageAudio(audio)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(path) }()

	resp, err := api.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    c.transcriptionModel,
		FilePath: path,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai: transcription request failed: %w", statusError("transcription", err))
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *Client) stageAudio(audio []byte) (string, error) {
	f, err := os.CreateTemp(c.tempDir, "voicebot-*"+audioSuffix(audio))
	if err != nil {
		return "", fmt.Errorf("openai: create temp audio file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(audio); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("openai: write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("openai: close temp audio file: %w", err)
	}
	return path, nil
}

// audioSuffix picks a file extension from the payload's magic bytes. The
// transcription endpoint infers the codec from the uploaded file name.
func audioSuffix(audio []byte) string {
	switch http.DetectContentType(audio) {
	case "audio/mpeg":
		return ".mp3"
	case "application/ogg":
		return ".ogg"
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "audio/aiff":
		return ".aiff"
	default:
		return ".wav"
	}
}
