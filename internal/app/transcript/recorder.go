// Package transcript stamps and persists transcript entries so that every
// writer in the process shares one ordering.
package transcript

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

// Resolution of every backend we store timestamps in.
const tick = time.Microsecond

type Recorder struct {
	store domain.MessageStore
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
	seq  int64
}

func NewRecorder(store domain.MessageStore) *Recorder {
	return newRecorder(store, time.Now)
}

func newRecorder(store domain.MessageStore, now func() time.Time) *Recorder {
	return &Recorder{
		store: store,
		now:   now,
		seq:   now().UnixNano(),
	}
}

// stamp returns a timestamp strictly after the previous one and the next
// sequence number.
func (r *Recorder) stamp() (time.Time, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.now().UTC().Truncate(tick)
	if !t.After(r.last) {
		t = r.last.Add(tick)
	}
	r.last = t
	r.seq++
	return t, r.seq
}

// Entry builds a stamped entry without storing it.
func (r *Recorder) Entry(sessionID domain.SessionID, role domain.Role, content string, userID *domain.UserID) *domain.Message {
	at, seq := r.stamp()
	return &domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
		Seq:       seq,
	}
}

// Persist stores entries in the given order. On failure the entries already
// stored by this call are deleted again, so either all land or none do.
func (r *Recorder) Persist(ctx context.Context, msgs ...*domain.Message) error {
	for i, m := range msgs {
		if err := r.store.AppendMessage(ctx, m); err != nil {
			r.rollback(ctx, msgs[:i])
			return domain.Unavailable("append message", err)
		}
	}
	return nil
}

func (r *Recorder) rollback(ctx context.Context, stored []*domain.Message) {
	for _, m := range slices.Backward(stored) {
		if err := r.store.DeleteMessage(ctx, m.SessionID, m.ID); err != nil {
			observability.LoggerFromContext(ctx).Error("failed to roll back transcript entry",
				"session_id", m.SessionID, "message_id", m.ID, "error", err)
		}
	}
}

// Append is Entry followed by Persist.
func (r *Recorder) Append(
	ctx context.Context,
	sessionID domain.SessionID,
	role domain.Role,
	content string,
	userID *domain.UserID,
) (*domain.Message, error) {
	msg := r.Entry(sessionID, role, content, userID)
	if err := r.Persist(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns the whole transcript of a session in creation order.
func (r *Recorder) History(ctx context.Context, sessionID domain.SessionID) ([]*domain.Message, error) {
	msgs, _, err := r.store.ListMessages(ctx, sessionID, domain.MessageQuery{})
	if err != nil {
		return nil, domain.Unavailable("list messages", err)
	}
	return msgs, nil
}

// Store exposes the underlying message store.
func (r *Recorder) Store() domain.MessageStore {
	return r.store
}
