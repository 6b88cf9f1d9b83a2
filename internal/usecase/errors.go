package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorNoInput       ErrorCode = "NO_INPUT"
	ErrorInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorTranscription ErrorCode = "TRANSCRIPTION_ERROR"
	ErrorCompletion    ErrorCode = "COMPLETION_ERROR"
	ErrorRateLimited   ErrorCode = "RATE_LIMITED"
	ErrorSessionBusy   ErrorCode = "SESSION_BUSY"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

// userMessages are the texts shown to the person at the keyboard.
var userMessages = map[ErrorCode]string{
	ErrorNoInput:       "Please speak or type something.",
	ErrorInvalidInput:  "That message could not be accepted. Please shorten it and try again.",
	ErrorTranscription: "Sorry, I couldn't understand the audio. Please try again or type your question.",
	ErrorCompletion:    "The assistant is unavailable right now. Your question was kept, please try again.",
	ErrorRateLimited:   "The assistant is busy right now. Your question was kept, please try again shortly.",
	ErrorSessionBusy:   "Still working on your previous message.",
	ErrorInternal:      "Something went wrong. Please try again.",
}

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserMessage is the user-facing text for the error's code.
func (e *Error) UserMessage() string {
	if e == nil {
		return ""
	}
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return userMessages[ErrorInternal]
}

// IsCompletionFailure reports whether err came from the chat service call, in
// which case the user turn of that submission was kept.
func IsCompletionFailure(err error) bool {
	var ue *Error
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Code == ErrorCompletion || ue.Code == ErrorRateLimited
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
