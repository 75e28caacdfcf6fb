package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/memory"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

func TestMessageStoreOrdersByTimestampThenSeq(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	// appended out of order on purpose
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{ID: "c", SessionID: "s", Role: domain.RoleModel, Content: "third", CreatedAt: at.Add(time.Second), Seq: 1}))
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{ID: "b", SessionID: "s", Role: domain.RoleUser, Content: "second", CreatedAt: at, Seq: 2}))
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{ID: "a", SessionID: "s", Role: domain.RoleUser, Content: "first", CreatedAt: at, Seq: 1}))

	msgs, total, err := store.ListMessages(ctx, "s", domain.MessageQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, msgs, 3)
	assert.Equal(t, []domain.MessageID{"a", "b", "c"}, []domain.MessageID{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestMessageStoreFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, c := range []string{"open the Door", "a door opens", "roll", "look around"} {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleModel
		}
		require.NoError(t, store.AppendMessage(ctx, &domain.Message{
			ID: domain.MessageID(c), SessionID: "s", Role: role, Content: c,
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, total, err := store.ListMessages(ctx, "s", domain.MessageQuery{Search: "door"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, msgs, 2)

	msgs, total, err = store.ListMessages(ctx, "s", domain.MessageQuery{Role: domain.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "open the Door", msgs[0].Content)

	msgs, total, err = store.ListMessages(ctx, "s", domain.MessageQuery{Descending: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, msgs, 1)
	assert.Equal(t, "look around", msgs[0].Content)

	msgs, _, err = store.ListMessages(ctx, "s", domain.MessageQuery{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessageStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{ID: "m1", SessionID: "s"}))
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{ID: "m2", SessionID: "s", Seq: 1}))

	require.NoError(t, store.DeleteMessage(ctx, "s", "m1"))
	assert.ErrorIs(t, store.DeleteMessage(ctx, "s", "m1"), domain.ErrNotFound)

	_, err := store.GetMessage(ctx, "s", "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := store.DeleteSessionMessages(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.DeleteSessionMessages(ctx, "s")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionStoreListing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, &domain.Session{ID: "s1", OwnerID: "alice", Title: "Goblin Caves", Status: domain.StatusActive, CreatedAt: at}))
	require.NoError(t, store.CreateSession(ctx, &domain.Session{ID: "s2", OwnerID: "bob", Title: "Dragon Keep", Status: domain.StatusPaused, CreatedAt: at.Add(time.Hour)}))
	require.NoError(t, store.CreateSession(ctx, &domain.Session{ID: "s3", OwnerID: "carol", Title: "Sea of Stars", Status: domain.StatusActive, CreatedAt: at.Add(2 * time.Hour)}))
	assert.ErrorIs(t, store.CreateSession(ctx, &domain.Session{ID: "s1"}), domain.ErrConflict)

	got, total, err := store.ListSessions(ctx, domain.SessionQuery{MemberOf: "alice", SessionIDs: []domain.SessionID{"s2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, domain.SessionID("s2"), got[0].ID, "newest first")

	got, total, err = store.ListSessions(ctx, domain.SessionQuery{Status: domain.StatusActive, Search: "sea"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, domain.SessionID("s3"), got[0].ID)
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	require.NoError(t, store.CreateSession(ctx, &domain.Session{ID: "s1", Title: "before"}))

	sess, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	sess.Title = "after"

	again, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "before", again.Title)

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err = store.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParticipantStoreCapacity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewParticipantStore()

	require.NoError(t, store.AddParticipant(ctx, &domain.Participant{SessionID: "s", UserID: "a"}, 2))
	assert.ErrorIs(t, store.AddParticipant(ctx, &domain.Participant{SessionID: "s", UserID: "a"}, 2), domain.ErrConflict)
	require.NoError(t, store.AddParticipant(ctx, &domain.Participant{SessionID: "s", UserID: "b"}, 2))
	assert.ErrorIs(t, store.AddParticipant(ctx, &domain.Participant{SessionID: "s", UserID: "c"}, 2), domain.ErrConflict)

	ids, err := store.ListUserSessionIDs(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"s"}, ids)

	require.NoError(t, store.RemoveParticipant(ctx, "s", "b"))
	assert.ErrorIs(t, store.RemoveParticipant(ctx, "s", "b"), domain.ErrNotFound)

	list, err := store.ListParticipants(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUserStoreEmailIsUnique(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()

	require.NoError(t, store.CreateUser(ctx, &domain.User{ID: "u1", Email: "a@x.io"}))
	assert.ErrorIs(t, store.CreateUser(ctx, &domain.User{ID: "u2", Email: "A@x.io"}), domain.ErrConflict)

	u, err := store.GetUserByEmail(ctx, "A@X.IO")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), u.ID)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
