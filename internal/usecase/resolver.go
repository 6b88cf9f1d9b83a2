package usecase

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Resolver decides which input of a submission is authoritative.
type Resolver struct {
	transcriber Transcriber
	observe     func(time.Duration)
}

func NewResolver(t Transcriber) (*Resolver, error) {
	if t == nil {
		return nil, errors.New("usecase: transcriber must not be nil")
	}
	return &Resolver{transcriber: t}, nil
}

// Resolve returns the user text for one submission, or "" when neither input
// carried anything usable.
//
// Audio, when present, is always transcribed first and a failure there is
// reported even if typed text was also supplied. Non-empty typed text then
// replaces the transcription unconditionally.
func (r *Resolver) Resolve(ctx context.Context, audio []byte, typed string) (string, error) {
	var userText string

	if len(audio) > 0 {
		start := time.Now()
		text, err := r.transcriber.Transcribe(ctx, audio)
		if r.observe != nil {
			r.observe(time.Since(start))
		}
		if err != nil {
			return "", newError(ErrorTranscription, "transcription_failed", err)
		}
		userText = strings.TrimSpace(text)
	}

	if typed = strings.TrimSpace(typed); typed != "" {
		userText = typed
	}
	return userText, nil
}
