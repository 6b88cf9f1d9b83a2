package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voicebot/internal/domain"
	"voicebot/internal/session"
)

type mockTranscriber struct {
	text  string
	err   error
	calls int
}

func (m *mockTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	m.calls++
	return m.text, m.err
}

type chatResponse struct {
	reply string
	err   error
}

type mockLLM struct {
	mu        sync.Mutex
	responses []chatResponse
	callCount int
	captured  [][]domain.Turn
}

func (m *mockLLM) Chat(_ context.Context, msgs []domain.Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captured = append(m.captured, msgs)
	if len(m.responses) == 0 {
		return "", errors.New("no llm response configured")
	}
	idx := m.callCount
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.callCount++
	return m.responses[idx].reply, m.responses[idx].err
}

func (m *mockLLM) lastMessages() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.captured) == 0 {
		return nil
	}
	return m.captured[len(m.captured)-1]
}

func replies(texts ...string) *mockLLM {
	out := make([]chatResponse, 0, len(texts))
	for _, t := range texts {
		out = append(out, chatResponse{reply: t})
	}
	return &mockLLM{responses: out}
}

// blockingLLM holds every Chat call until release is closed.
type blockingLLM struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingLLM() *blockingLLM {
	return &blockingLLM{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingLLM) Chat(ctx context.Context, _ []domain.Turn) (string, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type mockJournal struct {
	mu     sync.Mutex
	err    error
	refs   []domain.TurnRef
	turns  []domain.Turn
	resets []domain.TurnRef
}

func (m *mockJournal) RecordTurn(_ context.Context, ref domain.TurnRef, turn domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = append(m.refs, ref)
	m.turns = append(m.turns, turn)
	return m.err
}

func (m *mockJournal) RecordReset(_ context.Context, ref domain.TurnRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, ref)
	return m.err
}

type failingRegistry struct{}

func (failingRegistry) GetOrCreate(string) (*session.Session, error) {
	return nil, errors.New("registry unavailable")
}
func (failingRegistry) Get(string) (*session.Session, bool) { return nil, false }
func (failingRegistry) End(string) bool                      { return false }
func (failingRegistry) Len() int                             { return 0 }

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

// testClock is shared between the test goroutine and the service under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
