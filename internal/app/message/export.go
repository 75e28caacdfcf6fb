package message

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
)

// ParseFormat accepts json, csv or txt in any case. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatTXT:
		return f, nil
	}
	return "", domain.Errorf(domain.ErrInvalidInput, "unsupported export format %q", s)
}

type Export struct {
	SessionID    domain.SessionID
	Format       Format
	Content      string
	MessageCount int
}

var roleLabels = map[domain.Role]string{
	domain.RoleUser:   "Player",
	domain.RoleModel:  "Game Master",
	domain.RoleSystem: "System",
}

type exportMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    *string   `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type exportDocument struct {
	SessionID    string          `json:"session_id"`
	SessionTitle string          `json:"session_title"`
	ExportedAt   time.Time       `json:"exported_at"`
	MessageCount int             `json:"message_count"`
	Messages     []exportMessage `json:"messages"`
}

// Export renders the whole transcript of a session in the given format.
func (s *Service) Export(ctx context.Context, actor domain.UserID, sessionID domain.SessionID, format Format) (*Export, error) {
	sess, err := s.sessions.Access(ctx, actor, sessionID, session.PermView)
	if err != nil {
		return nil, err
	}
	msgs, err := s.recorder.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var content string
	switch format {
	case FormatTXT:
		content = renderText(sess, msgs, time.Now().UTC())
	case FormatCSV:
		content, err = renderCSV(msgs)
	default:
		format = FormatJSON
		content, err = renderJSON(sess, msgs, time.Now().UTC())
	}
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}
	return &Export{SessionID: sessionID, Format: format, Content: content, MessageCount: len(msgs)}, nil
}

func renderText(sess *domain.Session, msgs []*domain.Message, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", sess.Title)
	fmt.Fprintf(&b, "Exported on: %s\n", now.Format(time.RFC3339))
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	for _, m := range msgs {
		label, ok := roleLabels[m.Role]
		if !ok {
			label = string(m.Role)
		}
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", m.CreatedAt.Format(time.RFC3339Nano), label, m.Content)
	}
	return b.String()
}

func renderCSV(msgs []*domain.Message) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "role", "content", "user_id"}); err != nil {
		return "", err
	}
	for _, m := range msgs {
		userID := ""
		if m.UserID != nil {
			userID = string(*m.UserID)
		}
		if err := w.Write([]string{m.CreatedAt.Format(time.RFC3339Nano), string(m.Role), m.Content, userID}); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

func renderJSON(sess *domain.Session, msgs []*domain.Message, now time.Time) (string, error) {
	doc := exportDocument{
		SessionID:    string(sess.ID),
		SessionTitle: sess.Title,
		ExportedAt:   now,
		MessageCount: len(msgs),
		Messages:     make([]exportMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		em := exportMessage{
			ID:        string(m.ID),
			SessionID: string(m.SessionID),
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if m.UserID != nil {
			u := string(*m.UserID)
			em.UserID = &u
		}
		doc.Messages = append(doc.Messages, em)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
