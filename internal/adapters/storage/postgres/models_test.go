package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%dragon%`, likePattern("dragon"))
	assert.Equal(t, `%50\% off\_now%`, likePattern("50% off_now"))
}

func TestMessageModelKeepsNilAuthor(t *testing.T) {
	now := time.Now().UTC()
	msg := &domain.Message{ID: "m1", SessionID: "s1", Role: domain.RoleModel, Content: "x", CreatedAt: now, Seq: 7}

	back := fromMessage(msg).toDomain()
	assert.Nil(t, back.UserID)
	assert.Equal(t, msg, back)

	uid := domain.UserID("u1")
	msg.UserID = &uid
	back = fromMessage(msg).toDomain()
	if assert.NotNil(t, back.UserID) {
		assert.Equal(t, uid, *back.UserID)
	}
}
