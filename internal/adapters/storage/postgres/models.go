package postgres

import (
	"time"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type sessionModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	OwnerID     string `gorm:"index;size:36;not null"`
	Title       string `gorm:"size:200;not null"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"index;size:16;not null"`
	MaxPlayers  int    `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (sessionModel) TableName() string { return "game_sessions" }

type messageModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SessionID string    `gorm:"index:idx_messages_order,priority:1;size:36;not null"`
	UserID    *string   `gorm:"size:36"`
	Role      string    `gorm:"size:16;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_messages_order,priority:2"`
	Seq       int64     `gorm:"index:idx_messages_order,priority:3"`
}

func (messageModel) TableName() string { return "messages" }

type participantModel struct {
	SessionID string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;index;size:36"`
	JoinedAt  time.Time
}

func (participantModel) TableName() string { return "session_participants" }

type userModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	Username     string `gorm:"size:100;not null"`
	Role         string `gorm:"size:16;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	CreatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

func fromSession(s *domain.Session) *sessionModel {
	return &sessionModel{
		ID:          string(s.ID),
		OwnerID:     string(s.OwnerID),
		Title:       s.Title,
		Description: s.Description,
		Status:      string(s.Status),
		MaxPlayers:  s.MaxPlayers,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func (m *sessionModel) toDomain() *domain.Session {
	return &domain.Session{
		ID:          domain.SessionID(m.ID),
		OwnerID:     domain.UserID(m.OwnerID),
		Title:       m.Title,
		Description: m.Description,
		Status:      domain.SessionStatus(m.Status),
		MaxPlayers:  m.MaxPlayers,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fromMessage(msg *domain.Message) *messageModel {
	var userID *string
	if msg.UserID != nil {
		u := string(*msg.UserID)
		userID = &u
	}
	return &messageModel{
		ID:        string(msg.ID),
		SessionID: string(msg.SessionID),
		UserID:    userID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Seq:       msg.Seq,
	}
}

func (m *messageModel) toDomain() *domain.Message {
	var userID *domain.UserID
	if m.UserID != nil {
		u := domain.UserID(*m.UserID)
		userID = &u
	}
	return &domain.Message{
		ID:        domain.MessageID(m.ID),
		SessionID: domain.SessionID(m.SessionID),
		UserID:    userID,
		Role:      domain.Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Seq:       m.Seq,
	}
}

func fromUser(u *domain.User) *userModel {
	return &userModel{
		ID:           string(u.ID),
		Email:        u.Email,
		Username:     u.Username,
		Role:         string(u.Role),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func (m *userModel) toDomain() *domain.User {
	return &domain.User{
		ID:           domain.UserID(m.ID),
		Email:        m.Email,
		Username:     m.Username,
		Role:         domain.UserRole(m.Role),
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}
