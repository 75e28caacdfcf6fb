package transcript

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/memory"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

func TestStampIsStrictlyIncreasingUnderAFrozenClock(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newRecorder(memory.NewMessageStore(), func() time.Time { return frozen })

	a := r.Entry("s1", domain.RoleUser, "a", nil)
	b := r.Entry("s1", domain.RoleModel, "b", nil)

	assert.True(t, b.CreatedAt.After(a.CreatedAt))
	assert.Equal(t, a.Seq+1, b.Seq)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestConcurrentAppendsKeepOneOrder(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(memory.NewMessageStore())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Append(ctx, "s1", domain.RoleSystem, "tick", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := r.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt))
		assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq)
	}
}

type failingAppend struct {
	*memory.MessageStore
	failOn, calls int
}

func (s *failingAppend) AppendMessage(ctx context.Context, msg *domain.Message) error {
	s.calls++
	if s.calls == s.failOn {
		return errors.New("disk full")
	}
	return s.MessageStore.AppendMessage(ctx, msg)
}

func TestPersistIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := &failingAppend{MessageStore: memory.NewMessageStore(), failOn: 3}
	r := NewRecorder(store)

	_, err := r.Append(ctx, "s1", domain.RoleSystem, "persona", nil)
	require.NoError(t, err)

	err = r.Persist(ctx,
		r.Entry("s1", domain.RoleUser, "Player action: open door", nil),
		r.Entry("s1", domain.RoleModel, "It creaks.", nil),
	)
	require.ErrorIs(t, err, domain.ErrUnavailable)

	msgs, err := r.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "persona", msgs[0].Content)
}
