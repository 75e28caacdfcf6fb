// Package postgres persists sessions, transcripts and accounts with gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type Store struct {
	db *gorm.DB
}

// NewStore opens dsn and migrates the schema.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required for Postgres store")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return NewStoreFromDB(db)
}

// NewStoreFromDB wraps an existing connection and migrates the schema.
func NewStoreFromDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&sessionModel{}, &messageModel{}, &participantModel{}, &userModel{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	if err := s.db.WithContext(ctx).Create(fromSession(session)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewError(domain.ErrConflict, "session already exists")
		}
		return fmt.Errorf("postgres CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	m := fromSession(session)
	res := s.db.WithContext(ctx).Model(&sessionModel{ID: m.ID}).Select("*").Omit("created_at").Updates(m)
	if res.Error != nil {
		return fmt.Errorf("postgres UpdateSession: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	var m sessionModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres GetSession: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	res := s.db.WithContext(ctx).Delete(&sessionModel{}, "id = ?", string(id))
	if res.Error != nil {
		return fmt.Errorf("postgres DeleteSession: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, q domain.SessionQuery) ([]*domain.Session, int, error) {
	tx := s.db.WithContext(ctx).Model(&sessionModel{})
	if q.MemberOf != "" {
		ids := make([]string, 0, len(q.SessionIDs))
		for _, id := range q.SessionIDs {
			ids = append(ids, string(id))
		}
		if len(ids) > 0 {
			tx = tx.Where("owner_id = ? OR id IN ?", string(q.MemberOf), ids)
		} else {
			tx = tx.Where("owner_id = ?", string(q.MemberOf))
		}
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	if q.Search != "" {
		p := likePattern(q.Search)
		tx = tx.Where("title ILIKE ? OR description ILIKE ?", p, p)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("postgres ListSessions count: %w", err)
	}

	tx = tx.Order("created_at DESC").Order("id ASC").Offset(q.Offset)
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var rows []sessionModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("postgres ListSessions: %w", err)
	}

	out := make([]*domain.Session, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, int(total), nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if err := s.db.WithContext(ctx).Create(fromMessage(msg)).Error; err != nil {
		return fmt.Errorf("postgres AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID domain.SessionID, q domain.MessageQuery) ([]*domain.Message, int, error) {
	tx := s.db.WithContext(ctx).Model(&messageModel{}).Where("session_id = ?", string(sessionID))
	if q.Role != "" {
		tx = tx.Where("role = ?", string(q.Role))
	}
	if q.Search != "" {
		tx = tx.Where("content ILIKE ?", likePattern(q.Search))
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("postgres ListMessages count: %w", err)
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	tx = tx.Order("created_at " + dir).Order("seq " + dir).Offset(q.Offset)
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var rows []messageModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("postgres ListMessages: %w", err)
	}

	out := make([]*domain.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, int(total), nil
}

func (s *Store) GetMessage(ctx context.Context, sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	var m messageModel
	err := s.db.WithContext(ctx).First(&m, "session_id = ? AND id = ?", string(sessionID), string(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("postgres GetMessage: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) DeleteMessage(ctx context.Context, sessionID domain.SessionID, id domain.MessageID) error {
	res := s.db.WithContext(ctx).Delete(&messageModel{}, "session_id = ? AND id = ?", string(sessionID), string(id))
	if res.Error != nil {
		return fmt.Errorf("postgres DeleteMessage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (s *Store) DeleteSessionMessages(ctx context.Context, sessionID domain.SessionID) (int, error) {
	res := s.db.WithContext(ctx).Delete(&messageModel{}, "session_id = ?", string(sessionID))
	if res.Error != nil {
		return 0, fmt.Errorf("postgres DeleteSessionMessages: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// ─────────────────────────────────────────
// ParticipantStore implementation
// ─────────────────────────────────────────

// AddParticipant locks the session row so membership and capacity are
// checked against a stable count.
func (s *Store) AddParticipant(ctx context.Context, p *domain.Participant, capacity int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess sessionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sess, "id = ?", string(p.SessionID)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrSessionNotFound
			}
			return err
		}

		var rows []participantModel
		if err := tx.Where("session_id = ?", string(p.SessionID)).Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			if r.UserID == string(p.UserID) {
				return domain.NewError(domain.ErrConflict, "already a participant")
			}
		}
		if capacity > 0 && len(rows) >= capacity {
			return domain.NewError(domain.ErrConflict, "session is full")
		}
		return tx.Create(&participantModel{
			SessionID: string(p.SessionID),
			UserID:    string(p.UserID),
			JoinedAt:  p.JoinedAt,
		}).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewError(domain.ErrConflict, "already a participant")
		}
		return fmt.Errorf("postgres AddParticipant: %w", err)
	}
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	res := s.db.WithContext(ctx).Delete(&participantModel{}, "session_id = ? AND user_id = ?", string(sessionID), string(userID))
	if res.Error != nil {
		return fmt.Errorf("postgres RemoveParticipant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewError(domain.ErrNotFound, "not a participant")
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	var rows []participantModel
	if err := s.db.WithContext(ctx).Where("session_id = ?", string(sessionID)).Order("joined_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres ListParticipants: %w", err)
	}
	out := make([]*domain.Participant, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.Participant{
			SessionID: domain.SessionID(r.SessionID),
			UserID:    domain.UserID(r.UserID),
			JoinedAt:  r.JoinedAt,
		})
	}
	return out, nil
}

func (s *Store) ListUserSessionIDs(ctx context.Context, userID domain.UserID) ([]domain.SessionID, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&participantModel{}).Where("user_id = ?", string(userID)).Pluck("session_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("postgres ListUserSessionIDs: %w", err)
	}
	out := make([]domain.SessionID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.SessionID(id))
	}
	return out, nil
}

func (s *Store) DeleteSessionParticipants(ctx context.Context, sessionID domain.SessionID) error {
	if err := s.db.WithContext(ctx).Delete(&participantModel{}, "session_id = ?", string(sessionID)).Error; err != nil {
		return fmt.Errorf("postgres DeleteSessionParticipants: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// UserStore implementation
// ─────────────────────────────────────────

var errEmailTaken = domain.NewError(domain.ErrConflict, "email already registered")

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	m := fromUser(user)
	m.Email = strings.ToLower(m.Email)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errEmailTaken
		}
		return fmt.Errorf("postgres CreateUser: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	m := fromUser(user)
	m.Email = strings.ToLower(m.Email)
	res := s.db.WithContext(ctx).Model(&userModel{ID: m.ID}).Select("*").Omit("created_at").Updates(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return errEmailTaken
		}
		return fmt.Errorf("postgres UpdateUser: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("postgres GetUser: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).First(&m, "email = ?", strings.ToLower(email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("postgres GetUserByEmail: %w", err)
	}
	return m.toDomain(), nil
}
