package session

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebot/internal/domain"
)

func TestStore_AppendPreservesOrder(t *testing.T) {
	s := NewStore()
	require.Equal(t, 0, s.Append(domain.UserTurn("Q1")))
	require.Equal(t, 1, s.Append(domain.AssistantTurn("A1")))
	require.Equal(t, 2, s.Append(domain.UserTurn("Q2")))

	require.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Content: "Q1"},
		{Role: domain.RoleAssistant, Content: "A1"},
		{Role: domain.RoleUser, Content: "Q2"},
	}, s.Snapshot())
}

func TestStore_SnapshotIsIdempotent(t *testing.T) {
	s := NewStore()
	s.Append(domain.UserTurn("Q1"))
	s.Append(domain.AssistantTurn("A1"))

	require.Equal(t, s.Snapshot(), s.Snapshot())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Append(domain.UserTurn("Q1"))

	snap := s.Snapshot()
	snap[0].Content = "edited"
	require.Equal(t, "Q1", s.Snapshot()[0].Content)
}

func TestStore_EmptySnapshot(t *testing.T) {
	snap := NewStore().Snapshot()
	require.NotNil(t, snap)
	require.Empty(t, snap)
}

func TestStore_ResetClearsEverything(t *testing.T) {
	s := NewStore()
	for i := 0; i < 2; i++ {
		s.Append(domain.UserTurn("Q"))
		s.Append(domain.AssistantTurn("A"))
	}
	require.Equal(t, 4, s.Len())

	require.Equal(t, 1, s.Reset())
	require.Empty(t, s.Snapshot())

	s.Append(domain.UserTurn("fresh"))
	require.Equal(t, []domain.Turn{domain.UserTurn("fresh")}, s.Snapshot())
	require.Equal(t, 1, s.Epoch())
}

func TestStore_ConcurrentResetNeverExposesPartialState(t *testing.T) {
	s := NewStore()
	const writes = 2000

	stop := make(chan struct{})
	var writer, others sync.WaitGroup

	// A single writer numbers its turns, so any snapshot must be a run of
	// consecutive numbers: the start of the sequence since the last reset.
	writer.Add(1)
	go func() {
		defer writer.Done()
		prev := -1
		for i := 0; i < writes; i++ {
			idx := s.Append(domain.UserTurn(strconv.Itoa(i)))
			assert.True(t, idx == 0 || idx == prev+1, "append index %d after %d", idx, prev)
			prev = idx
		}
	}()

	for r := 0; r < 4; r++ {
		others.Add(1)
		go func() {
			defer others.Done()
			for {
				select {
				case <-stop:
					return
				default:
					s.Reset()
				}
			}
		}()
	}

	for r := 0; r < 4; r++ {
		others.Add(1)
		go func() {
			defer others.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				for i := 1; i < len(snap); i++ {
					prev, err := strconv.Atoi(snap[i-1].Content)
					assert.NoError(t, err)
					cur, err := strconv.Atoi(snap[i].Content)
					assert.NoError(t, err)
					assert.Equal(t, prev+1, cur, "snapshot is not a consecutive run: %v", snap)
				}
			}
		}()
	}

	writer.Wait()
	close(stop)
	others.Wait()

	s.Reset()
	require.Zero(t, s.Len())
}
