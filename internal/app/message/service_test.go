package message_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/memory"
	"github.com/PabloGalante/ttrpg-gm/internal/app/message"
	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/app/transcript"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type noInit struct{}

func (noInit) InitializeSession(context.Context, domain.SessionID) string { return "" }

type fixture struct {
	svc      *message.Service
	sessions *session.Service
	sess     *domain.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	recorder := transcript.NewRecorder(memory.NewMessageStore())
	sessions := session.NewService(memory.NewSessionStore(), memory.NewParticipantStore(), memory.NewUserStore(), recorder, noInit{}, nil)
	out, err := sessions.Create(context.Background(), "alice", session.CreateInput{Title: "The Dragon's Lair"})
	require.NoError(t, err)
	_, err = sessions.Join(context.Background(), "bob", out.Session.ID)
	require.NoError(t, err)

	return &fixture{
		svc:      message.NewService(sessions, recorder),
		sessions: sessions,
		sess:     out.Session,
	}
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.svc.Create(ctx, "bob", f.sess.ID, message.CreateInput{Content: "I search for traps"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, m.Role)
	require.NotNil(t, m.UserID)
	assert.Equal(t, domain.UserID("bob"), *m.UserID)

	_, err = f.svc.Create(ctx, "bob", f.sess.ID, message.CreateInput{Content: "narration", Role: domain.RoleModel})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Create(ctx, "alice", f.sess.ID, message.CreateInput{Content: "You find a trap.", Role: domain.RoleModel})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "eve", f.sess.ID, message.CreateInput{Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Create(ctx, "bob", f.sess.ID, message.CreateInput{Content: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	out, err := f.svc.List(ctx, "bob", f.sess.ID, message.ListInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, message.DefaultPerPage, out.PerPage)

	out, err = f.svc.List(ctx, "bob", f.sess.ID, message.ListInput{Role: domain.RoleModel})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "You find a trap.", out.Messages[0].Content)

	_, err = f.svc.List(ctx, "bob", f.sess.ID, message.ListInput{Role: "narrator"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateRejectedInCompletedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.sessions.Complete(ctx, "alice", f.sess.ID)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "bob", f.sess.ID, message.CreateInput{Content: "too late"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bobs, err := f.svc.Create(ctx, "bob", f.sess.ID, message.CreateInput{Content: "mine"})
	require.NoError(t, err)
	alices, err := f.svc.Create(ctx, "alice", f.sess.ID, message.CreateInput{Content: "owner's"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, "bob", f.sess.ID, alices.ID), domain.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, "bob", f.sess.ID, bobs.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, "bob", f.sess.ID, bobs.ID), domain.ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, "alice", f.sess.ID, alices.ID))

	_, err = f.svc.Get(ctx, "alice", f.sess.ID, alices.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClearIsOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, "bob", f.sess.ID, message.CreateInput{Content: "x"})
	require.NoError(t, err)

	_, err = f.svc.Clear(ctx, "bob", f.sess.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	n, err := f.svc.Clear(ctx, "alice", f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExportFormats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, "bob", f.sess.ID, message.CreateInput{Content: "I open the door, slowly"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "alice", f.sess.ID, message.CreateInput{Content: "It creaks.", Role: domain.RoleModel})
	require.NoError(t, err)

	csvOut, err := f.svc.Export(ctx, "bob", f.sess.ID, message.FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(csvOut.Content), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,role,content,user_id", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], `,user,"I open the door, slowly",bob`), lines[1])

	txt, err := f.svc.Export(ctx, "bob", f.sess.ID, message.FormatTXT)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(txt.Content, "Session: The Dragon's Lair\n"))
	assert.Contains(t, txt.Content, "] Player:\nI open the door, slowly\n")
	assert.Contains(t, txt.Content, "] Game Master:\nIt creaks.\n")

	js, err := f.svc.Export(ctx, "bob", f.sess.ID, message.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, js.MessageCount)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(js.Content), &doc))
	assert.Equal(t, "The Dragon's Lair", doc["session_title"])
	assert.Len(t, doc["messages"], 2)

	_, err = f.svc.Export(ctx, "eve", f.sess.ID, message.FormatJSON)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestParseFormat(t *testing.T) {
	f, err := message.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, message.FormatJSON, f)
	f, err = message.ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, message.FormatCSV, f)
	_, err = message.ParseFormat("xml")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
