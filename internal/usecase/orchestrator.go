package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"voicebot/internal/domain"
	"voicebot/internal/metrics"
	"voicebot/internal/session"
)

// Orchestrator turns one user text into one assistant reply against a
// session's store.
type Orchestrator struct {
	llm     ChatCompleter
	persona string
	journal Journal
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewOrchestrator(llm ChatCompleter, persona string, journal Journal, logger *slog.Logger, m *metrics.Metrics) (*Orchestrator, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if strings.TrimSpace(persona) == "" {
		return nil, errors.New("usecase: persona must not be empty")
	}
	if journal == nil {
		journal = nopJournal{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{llm: llm, persona: persona, journal: journal, logger: logger, metrics: m}, nil
}

// Respond appends the user turn, sends [persona]+history to the chat service
// and appends the reply. When the chat call fails the user turn stays in the
// store so a resubmission keeps its context.
//
// The caller must hold the session's submission slot.
func (o *Orchestrator) Respond(ctx context.Context, sess *session.Session, userText string) (string, error) {
	store := sess.Store()
	o.append(ctx, sess, domain.UserTurn(userText))

	messages := buildPromptMessages(o.persona, store.Snapshot())

	start := time.Now()
	reply, err := o.llm.Chat(ctx, messages)
	o.metrics.ObserveCompletion(time.Since(start).Seconds())
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
			return "", newError(ErrorRateLimited, "completion_rate_limited", err)
		}
		return "", newError(ErrorCompletion, "completion_failed", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", newError(ErrorCompletion, "completion_empty", nil)
	}

	o.append(ctx, sess, domain.AssistantTurn(reply))
	return reply, nil
}

// append stores t and mirrors it to the journal. Journal failures are logged
// and never fail the submission.
func (o *Orchestrator) append(ctx context.Context, sess *session.Session, t domain.Turn) {
	store := sess.Store()
	seq := store.Append(t)
	ref := domain.TurnRef{
		SessionID:  sess.ID,
		Generation: sess.Generation,
		Epoch:      store.Epoch(),
		Seq:        seq,
	}
	if err := o.journal.RecordTurn(ctx, ref, t); err != nil {
		o.metrics.RecordJournalError()
		o.logger.WarnContext(ctx, "journal write failed",
			"session_id", sess.ID,
			"role", string(t.Role),
			"seq", seq,
			"err", err,
		)
	}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
