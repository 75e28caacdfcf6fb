// Package turn runs player actions through the Game Master model and keeps
// the session transcript in step with it.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/PabloGalante/ttrpg-gm/internal/app/transcript"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

const (
	// DefaultTemperature is used for every transcript-driven generation.
	DefaultTemperature = 0.7
	MaxTemperature     = 2.0

	// FallbackReply is shown to players when a turn cannot be processed.
	FallbackReply = "I apologize, but I'm having trouble processing your action right now. Please try again."

	sceneLimit = 200
)

// Presence reports which users are connected to a session right now.
type Presence interface {
	ActiveUsers(sessionID domain.SessionID) []domain.UserID
}

// Persona holds the Game Master texts used to open a session.
type Persona struct {
	Prompt           string
	FallbackGreeting string
}

type Service struct {
	gen      domain.Generator
	recorder *transcript.Recorder
	sessions domain.SessionStore
	persona  Persona
	presence Presence
	now      func() time.Time
}

func NewService(
	gen domain.Generator,
	recorder *transcript.Recorder,
	sessions domain.SessionStore,
	persona Persona,
	presence Presence,
) *Service {
	return &Service{
		gen:      gen,
		recorder: recorder,
		sessions: sessions,
		persona:  persona,
		presence: presence,
		now:      time.Now,
	}
}

// Action is one player input.
type Action struct {
	Action      string
	Description string
	Parameters  map[string]any
	UserID      *domain.UserID
}

// Compose renders the action as the user entry sent to the model.
func (a Action) Compose() string {
	var b strings.Builder
	b.WriteString("Player action: ")
	b.WriteString(a.Action)
	if a.Description != "" {
		b.WriteString("\nDescription: ")
		b.WriteString(a.Description)
	}
	if len(a.Parameters) > 0 {
		params, err := json.Marshal(a.Parameters)
		if err != nil {
			params = []byte(fmt.Sprint(a.Parameters))
		}
		b.WriteString("\nParameters: ")
		b.Write(params)
	}
	return b.String()
}

type Result struct {
	SessionID       domain.SessionID
	Response        string
	ActionProcessed string
	Timestamp       time.Time
	// Error is set only on fallback results.
	Error string
}

// Error is returned when a turn could not be completed. Nothing has been
// appended to the transcript when it is returned.
type Error struct {
	SessionID domain.SessionID
	Op        string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("turn %s for session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fallback builds the placeholder result shown instead of a model reply.
func Fallback(sessionID domain.SessionID, action string, err error) *Result {
	res := &Result{
		SessionID:       sessionID,
		Response:        FallbackReply,
		ActionProcessed: action,
		Timestamp:       time.Now().UTC(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// ProcessAction sends the full transcript plus the composed action to the
// model, then persists the action and the reply in that order.
func (s *Service) ProcessAction(ctx context.Context, sessionID domain.SessionID, action Action) (*Result, error) {
	if strings.TrimSpace(action.Action) == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "action is required")
	}

	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)
	log.Info("processing action", "action", action.Action)

	history, err := s.recorder.History(ctx, sessionID)
	if err != nil {
		log.Error("failed to load history", "error", err)
		return nil, &Error{SessionID: sessionID, Op: "load history", Err: err}
	}

	userEntry := s.recorder.Entry(sessionID, domain.RoleUser, action.Compose(), action.UserID)
	turns := append(toTurns(history), domain.Turn{Role: domain.RoleUser, Text: userEntry.Content})

	gen, err := s.gen.Generate(ctx, domain.GenerateRequest{
		Turns:       turns,
		Temperature: DefaultTemperature,
	})
	if err != nil {
		log.Error("generation failed", "error", err)
		return nil, &Error{SessionID: sessionID, Op: "generate", Err: domain.Unavailable("generate", err)}
	}

	modelEntry := s.recorder.Entry(sessionID, domain.RoleModel, gen.Text, nil)
	if err := s.recorder.Persist(ctx, userEntry, modelEntry); err != nil {
		log.Error("failed to persist turn", "error", err)
		return nil, &Error{SessionID: sessionID, Op: "persist", Err: err}
	}

	log.Info("action processed", "tokens_used", gen.TokensUsed)

	return &Result{
		SessionID:       sessionID,
		Response:        gen.Text,
		ActionProcessed: action.Action,
		Timestamp:       modelEntry.CreatedAt,
	}, nil
}

// InitializeSession opens a session with the Game Master persona as the only
// context. It never reads the existing transcript. When the model or the
// store fails the fixed fallback greeting is returned instead.
func (s *Service) InitializeSession(ctx context.Context, sessionID domain.SessionID) string {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	gen, err := s.gen.Generate(ctx, domain.GenerateRequest{
		Turns:       []domain.Turn{{Role: domain.RoleUser, Text: s.persona.Prompt}},
		Temperature: DefaultTemperature,
	})
	if err != nil {
		log.Error("session initialization failed", "error", err)
		return s.persona.FallbackGreeting
	}

	system := s.recorder.Entry(sessionID, domain.RoleSystem, s.persona.Prompt, nil)
	reply := s.recorder.Entry(sessionID, domain.RoleModel, gen.Text, nil)
	if err := s.recorder.Persist(ctx, system, reply); err != nil {
		log.Error("failed to persist session opening", "error", err)
		return s.persona.FallbackGreeting
	}

	log.Info("session initialized")
	return gen.Text
}

func toTurns(msgs []*domain.Message) []domain.Turn {
	turns := make([]domain.Turn, 0, len(msgs)+1)
	for _, m := range msgs {
		turns = append(turns, domain.Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}

// ─────────────────────────────────────────
// Direct prompts
// ─────────────────────────────────────────

type PromptInput struct {
	Prompt      string
	Temperature *float64
	MaxTokens   int
}

func (in PromptInput) request() (domain.GenerateRequest, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return domain.GenerateRequest{}, domain.NewError(domain.ErrInvalidInput, "prompt is required")
	}
	temp := DefaultTemperature
	if in.Temperature != nil {
		temp = *in.Temperature
	}
	if temp < 0 || temp > MaxTemperature {
		return domain.GenerateRequest{}, domain.Errorf(domain.ErrInvalidInput, "temperature must be between 0 and %.1f", MaxTemperature)
	}
	if in.MaxTokens < 0 {
		return domain.GenerateRequest{}, domain.NewError(domain.ErrInvalidInput, "max_tokens must be positive")
	}
	return domain.GenerateRequest{
		Turns:       []domain.Turn{{Role: domain.RoleUser, Text: in.Prompt}},
		Temperature: temp,
		MaxTokens:   in.MaxTokens,
	}, nil
}

// Prompt generates a reply without any session context.
func (s *Service) Prompt(ctx context.Context, in PromptInput) (*domain.Generation, error) {
	req, err := in.request()
	if err != nil {
		return nil, err
	}
	gen, err := s.gen.Generate(ctx, req)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("direct prompt failed", "error", err)
		return nil, domain.Unavailable("generate", err)
	}
	return gen, nil
}

// StreamPrompt is Prompt delivered as incremental fragments.
func (s *Service) StreamPrompt(ctx context.Context, in PromptInput) (iter.Seq2[string, error], error) {
	req, err := in.request()
	if err != nil {
		return nil, err
	}
	stream := s.gen.Stream(ctx, req)
	return func(yield func(string, error) bool) {
		for chunk, err := range stream {
			if err != nil {
				yield("", domain.Unavailable("stream", err))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}, nil
}

// Model names the generator backing this service.
func (s *Service) Model() string {
	return s.gen.Model()
}
