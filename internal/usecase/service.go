package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"voicebot/internal/domain"
	"voicebot/internal/metrics"
	"voicebot/internal/presenter"
	"voicebot/internal/session"
)

const defaultMaxTextLength = 2000

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type ChatCompleter interface {
	Chat(ctx context.Context, messages []domain.Turn) (string, error)
}

// Journal receives every stored turn and every reset.
type Journal interface {
	RecordTurn(ctx context.Context, ref domain.TurnRef, turn domain.Turn) error
	RecordReset(ctx context.Context, ref domain.TurnRef) error
}

type SessionRegistry interface {
	GetOrCreate(id string) (*session.Session, error)
	Get(id string) (*session.Session, bool)
	End(id string) bool
	Len() int
}

type nopJournal struct{}

func (nopJournal) RecordTurn(context.Context, domain.TurnRef, domain.Turn) error { return nil }
func (nopJournal) RecordReset(context.Context, domain.TurnRef) error            { return nil }

// Service runs the submit/reset/transcript pipeline for every session.
type Service struct {
	resolver      *Resolver
	orchestrator  *Orchestrator
	sessions      SessionRegistry
	journal       Journal
	logger        *slog.Logger
	metrics       *metrics.Metrics
	persona       string
	maxTextLength int
}

type Option func(*Service)

func WithJournal(j Journal) Option {
	return func(s *Service) {
		if j != nil {
			s.journal = j
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPersona(p string) Option {
	return func(s *Service) {
		s.persona = p
	}
}

func WithMaxTextLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTextLength = n
		}
	}
}

type SubmitInput struct {
	SessionID string
	Text      string
	Audio     []byte
}

// SubmitOutput always carries the session ID and the rendered transcript,
// including when Submit returns an error.
type SubmitOutput struct {
	SessionID  string
	Reply      string
	Transcript []string
}

type TranscriptOutput struct {
	SessionID  string
	Transcript []string
}

func NewService(t Transcriber, llm ChatCompleter, sessions SessionRegistry, opts ...Option) (*Service, error) {
	if t == nil {
		return nil, errors.New("usecase: transcriber must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session registry must not be nil")
	}
	s := &Service{
		sessions:      sessions,
		journal:       nopJournal{},
		logger:        slog.Default(),
		persona:       Persona,
		maxTextLength: defaultMaxTextLength,
	}
	for _, opt := range opts {
		opt(s)
	}

	resolver, err := NewResolver(t)
	if err != nil {
		return nil, err
	}
	resolver.observe = func(d time.Duration) { s.metrics.ObserveTranscription(d.Seconds()) }

	orchestrator, err := NewOrchestrator(llm, s.persona, s.journal, s.logger, s.metrics)
	if err != nil {
		return nil, err
	}
	s.resolver = resolver
	s.orchestrator = orchestrator
	return s, nil
}

// Submit processes one user action end to end. A session accepts one
// submission at a time; a second one arriving while the first is in flight
// fails with SESSION_BUSY.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitOutput, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}
	out := SubmitOutput{SessionID: sessionID}

	sess, err := s.sessions.GetOrCreate(sessionID)
	if err != nil {
		return out, s.failSubmit(ctx, sessionID, newError(ErrorInternal, "session_lookup_error", err))
	}
	s.metrics.SetActiveSessions(s.sessions.Len())

	if !sess.TryBegin() {
		out.Transcript = presenter.Render(sess.Store().Snapshot())
		return out, s.failSubmit(ctx, sessionID, newError(ErrorSessionBusy, "submission_in_flight", nil))
	}
	defer sess.Finish()

	reply, err := s.submit(ctx, sess, in)
	out.Transcript = presenter.Render(sess.Store().Snapshot())
	if err != nil {
		if IsCompletionFailure(err) {
			s.logger.InfoContext(ctx, "question kept for retry",
				"session_id", sessionID,
				"turns", len(out.Transcript),
			)
		}
		return out, s.failSubmit(ctx, sessionID, err)
	}
	out.Reply = reply

	s.metrics.RecordSubmission("ok")
	s.logger.InfoContext(ctx, "submission answered",
		"session_id", sessionID,
		"turns", len(out.Transcript),
	)
	return out, nil
}

func (s *Service) submit(ctx context.Context, sess *session.Session, in SubmitInput) (string, error) {
	userText, err := s.resolver.Resolve(ctx, in.Audio, in.Text)
	if err != nil {
		return "", err
	}
	if userText == "" {
		return "", newError(ErrorNoInput, "no_usable_input", nil)
	}
	if utf8.RuneCountInString(userText) > s.maxTextLength {
		return "", newError(ErrorInvalidInput, "text_too_long", nil)
	}
	return s.orchestrator.Respond(ctx, sess, userText)
}

// Reset clears the session's conversation and returns the empty transcript.
// Resetting a session that does not exist is a no-op.
func (s *Service) Reset(ctx context.Context, sessionID string) (TranscriptOutput, error) {
	sess, out, err := s.lookup(sessionID)
	if err != nil {
		return out, s.fail(ctx, "reset", sessionID, err)
	}
	if sess == nil {
		return out, nil
	}
	if !sess.TryBegin() {
		out.Transcript = presenter.Render(sess.Store().Snapshot())
		return out, s.fail(ctx, "reset", sess.ID, newError(ErrorSessionBusy, "submission_in_flight", nil))
	}
	defer sess.Finish()

	out.Transcript = presenter.Reset(sess.Store())
	s.metrics.RecordReset()

	ref := domain.TurnRef{SessionID: sess.ID, Generation: sess.Generation, Epoch: sess.Store().Epoch()}
	if err := s.journal.RecordReset(ctx, ref); err != nil {
		s.metrics.RecordJournalError()
		s.logger.WarnContext(ctx, "journal reset failed", "session_id", sess.ID, "err", err)
	}
	s.logger.InfoContext(ctx, "conversation reset", "session_id", sess.ID, "epoch", ref.Epoch)
	return out, nil
}

// Transcript renders the session's current conversation. Unknown sessions
// render as empty and are not registered.
func (s *Service) Transcript(ctx context.Context, sessionID string) (TranscriptOutput, error) {
	sess, out, err := s.lookup(sessionID)
	if err != nil {
		return out, s.fail(ctx, "transcript", sessionID, err)
	}
	if sess != nil {
		out.Transcript = presenter.Render(sess.Store().Snapshot())
	}
	return out, nil
}

// End discards the session and its conversation. Ending an unknown session is
// not an error.
func (s *Service) End(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return s.fail(ctx, "end", sessionID, newError(ErrorInvalidInput, "missing_session_id", nil))
	}
	if s.sessions.End(sessionID) {
		s.logger.InfoContext(ctx, "session ended", "session_id", sessionID)
	}
	s.metrics.SetActiveSessions(s.sessions.Len())
	return nil
}

// lookup finds an existing session without creating one. A nil session with
// a nil error means the ID is unknown; out then holds an empty transcript.
func (s *Service) lookup(sessionID string) (*session.Session, TranscriptOutput, error) {
	sessionID = strings.TrimSpace(sessionID)
	out := TranscriptOutput{SessionID: sessionID, Transcript: []string{}}
	if sessionID == "" {
		return nil, out, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, out, nil
	}
	return sess, out, nil
}

// failSubmit counts a failed submission by its code before logging it.
func (s *Service) failSubmit(ctx context.Context, sessionID string, err error) error {
	s.metrics.RecordSubmission(string(errorCode(err)))
	return s.fail(ctx, "submit", sessionID, err)
}

// fail logs err on its way back to the caller.
func (s *Service) fail(ctx context.Context, op, sessionID string, err error) error {
	code := errorCode(err)
	reason := ""
	var ue *Error
	if errors.As(err, &ue) {
		reason = ue.Reason
	}

	level := slog.LevelInfo
	switch code {
	case ErrorInternal, ErrorCompletion, ErrorRateLimited, ErrorTranscription:
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "request failed",
		"op", op,
		"session_id", sessionID,
		"code", string(code),
		"reason", reason,
		"err", err,
	)
	return err
}

func errorCode(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}

var newUUID = func() string {
	return uuid.NewString()
}
