package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voicebot/internal/domain"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func TestManager_GetOrCreate_ReturnsSameSession(t *testing.T) {
	m := NewManager(time.Hour)

	a, err := m.GetOrCreate("sess-1")
	require.NoError(t, err)
	a.Store().Append(domain.UserTurn("hi"))

	b, err := m.GetOrCreate("sess-1")
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Equal(t, 1, b.Store().Len())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m := NewManager(time.Hour)
	a, _ := m.GetOrCreate("a")
	b, _ := m.GetOrCreate("b")

	a.Store().Append(domain.UserTurn("only in a"))
	require.Equal(t, 1, a.Store().Len())
	require.Zero(t, b.Store().Len())
}

func TestManager_GetOrCreate_RejectsEmptyID(t *testing.T) {
	_, err := NewManager(time.Hour).GetOrCreate("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestManager_End(t *testing.T) {
	m := NewManager(time.Hour)
	_, _ = m.GetOrCreate("sess-1")

	require.True(t, m.End("sess-1"))
	require.False(t, m.End("sess-1"))
	_, ok := m.Get("sess-1")
	require.False(t, ok)

	s, err := m.GetOrCreate("sess-1")
	require.NoError(t, err)
	require.Zero(t, s.Store().Len())
}

func TestManager_RecreatedSessionGetsNewGeneration(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(time.Hour, WithClock(clock.now))

	first, _ := m.GetOrCreate("sess-1")
	m.End("sess-1")
	clock.t = clock.t.Add(time.Second)
	second, _ := m.GetOrCreate("sess-1")

	require.NotEqual(t, first.Generation, second.Generation)
}

func TestManager_EvictsIdleSessions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(10*time.Minute, WithClock(clock.now))

	_, _ = m.GetOrCreate("old")
	clock.t = clock.t.Add(5 * time.Minute)
	_, _ = m.GetOrCreate("recent")
	clock.t = clock.t.Add(6 * time.Minute)

	require.Equal(t, 1, m.EvictIdle())
	_, ok := m.Get("old")
	require.False(t, ok)
	_, ok = m.Get("recent")
	require.True(t, ok)
	require.Equal(t, 1, m.Len())
}

func TestManager_DefaultsIdleTimeout(t *testing.T) {
	m := NewManager(0)
	require.Equal(t, defaultIdleTimeout, m.idleTimeout)
}

func TestSession_SubmissionSlot(t *testing.T) {
	s, _ := NewManager(time.Hour).GetOrCreate("sess-1")

	require.True(t, s.TryBegin())
	require.False(t, s.TryBegin())
	s.Finish()
	require.True(t, s.TryBegin())
	s.Finish()
}

func TestManager_DoesNotEvictSessionWithSubmissionInFlight(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(time.Minute, WithClock(clock.now))

	busy, err := m.GetOrCreate("s1")
	require.NoError(t, err)
	busy.Store().Append(domain.UserTurn("slow"))
	require.True(t, busy.TryBegin())

	clock.t = clock.t.Add(2 * time.Minute)
	require.Zero(t, m.EvictIdle())

	again, err := m.GetOrCreate("s1")
	require.NoError(t, err)
	require.Same(t, busy, again)
	require.False(t, again.TryBegin())
	require.Equal(t, 1, again.Store().Len())

	busy.Finish()
}

func TestSession_FinishRestartsIdleClock(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(time.Minute, WithClock(clock.now))

	s, err := m.GetOrCreate("s1")
	require.NoError(t, err)
	require.True(t, s.TryBegin())

	clock.t = clock.t.Add(5 * time.Minute)
	s.Finish()

	clock.t = clock.t.Add(30 * time.Second)
	require.Zero(t, m.EvictIdle())
	_, ok := m.Get("s1")
	require.True(t, ok)

	clock.t = clock.t.Add(time.Minute)
	require.Equal(t, 1, m.EvictIdle())
}
