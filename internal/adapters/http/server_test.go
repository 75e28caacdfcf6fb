package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	httpadapter "github.com/PabloGalante/ttrpg-gm/internal/adapters/http"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/identity"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/llm"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/memory"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/ws"
	"github.com/PabloGalante/ttrpg-gm/internal/app/account"
	"github.com/PabloGalante/ttrpg-gm/internal/app/dice"
	"github.com/PabloGalante/ttrpg-gm/internal/app/fanout"
	"github.com/PabloGalante/ttrpg-gm/internal/app/message"
	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/app/transcript"
	"github.com/PabloGalante/ttrpg-gm/internal/app/turn"
	"github.com/PabloGalante/ttrpg-gm/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type testServer struct {
	handler http.Handler
	gen     *llm.MockLLM
}

func newTestServer(t *testing.T, checks ...httpadapter.HealthCheck) *testServer {
	t.Helper()

	gen := llm.NewMockLLM("Welcome to the Sunken Keep.")
	sessions := memory.NewSessionStore()
	users := memory.NewUserStore()
	recorder := transcript.NewRecorder(memory.NewMessageStore())
	hub := fanout.NewHub()
	t.Cleanup(hub.Close)

	tokens := identity.NewJWTService("test-secret", "ttrpg-test", 30*time.Minute, time.Hour)
	turns := turn.NewService(gen, recorder, sessions, turn.Persona{
		Prompt:           "You are the GM.",
		FallbackGreeting: "Welcome, adventurer.",
	}, hub)
	sessionSvc := session.NewService(sessions, memory.NewParticipantStore(), users, recorder, turns, hub)
	diceSvc := dice.NewService(recorder, dice.SourceFunc(func(int) int { return 3 }))

	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	handler := httpadapter.NewServer(httpadapter.Deps{
		Accounts: account.NewService(users, tokens, identity.NewHasher(bcrypt.MinCost)),
		Verifier: tokens,
		Sessions: sessionSvc,
		Messages: message.NewService(sessionSvc, recorder),
		Turns:    turns,
		Dice:     diceSvc,
		Gateway:  ws.NewGateway(hub, sessionSvc, turns, diceSvc, tokens, nil),
		Catalog:  catalog,
		Checks:   checks,
		Version:  "test",
	})
	return &testServer{handler: handler, gen: gen}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func data[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	env := decode[envelope](t, w)
	require.True(t, env.Success, w.Body.String())
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": email, "password": "secret123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := data[struct {
		AccessToken string `json:"access_token"`
	}](t, w)
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

type sessionDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatorID string `json:"creator_id"`
}

func (s *testServer) createSession(t *testing.T, token, title string) sessionDTO {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]any{"title": title})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := data[struct {
		Session  sessionDTO `json:"session"`
		Greeting string     `json:"initial_response"`
	}](t, w)
	return out.Session
}

func TestRootAndHealth(t *testing.T) {
	srv := newTestServer(t, httpadapter.HealthCheck{Name: "database", Pinger: okPinger{}})

	w := srv.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = srv.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", h["status"])

	degraded := newTestServer(t, httpadapter.HealthCheck{Name: "database", Pinger: failingPinger{}})
	w = degraded.do(t, http.MethodGet, "/health", "", nil)
	h = decode[map[string]any](t, w)
	assert.Equal(t, "degraded", h["status"])
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := srv.register(t, "Alice@Example.com")

	w = srv.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": "alice@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	login := data[struct {
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}](t, w)
	assert.Equal(t, "bearer", login.TokenType)
	assert.Equal(t, 1800, login.ExpiresIn)

	w = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": login.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)

	// a refresh token is not an access token
	w = srv.do(t, http.MethodGet, "/api/v1/auth/me", login.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := data[struct {
		Email    string `json:"email"`
		Username string `json:"username"`
	}](t, w)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, "alice", me.Username)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice@example.com")
	bob := srv.register(t, "bob@example.com")

	sess := srv.createSession(t, alice, "The Sunken Keep")
	assert.Equal(t, "active", sess.Status)

	w := srv.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/join", bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do(t, http.MethodGet, "/api/v1/sessions?search=sunken", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Sessions []sessionDTO `json:"sessions"`
		Total    int          `json:"total"`
	}](t, w)
	assert.Equal(t, 1, list.Total)

	w = srv.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID+"/participants", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	parts := data[struct {
		Participants []map[string]any `json:"participants"`
	}](t, w)
	assert.Len(t, parts.Participants, 2)

	w = srv.do(t, http.MethodPost, "/api/v1/game/pause/"+sess.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/game/pause/"+sess.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused", data[map[string]string](t, w)["status"])

	w = srv.do(t, http.MethodPost, "/api/v1/game/action/"+sess.ID, bob, map[string]string{"action": "look around"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/game/pause/"+sess.ID, alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/game/complete/"+sess.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/game/resume/"+sess.ID, alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodDelete, "/api/v1/sessions/"+sess.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = srv.do(t, http.MethodDelete, "/api/v1/sessions/"+sess.ID, alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = srv.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlayingATurn(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice@example.com")
	sess := srv.createSession(t, alice, "Keep")

	w := srv.do(t, http.MethodPost, "/api/v1/ai/process-action/"+sess.ID, alice, map[string]any{
		"action":      "open the door",
		"description": "slowly",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := data[ws.GMResponse](t, w)
	assert.Equal(t, "open the door", res.ActionProcessed)
	assert.Contains(t, res.Response, "Player action: open the door")

	w = srv.do(t, http.MethodPost, "/api/v1/ai/roll-dice/"+sess.ID, alice, map[string]any{"dice_type": "d6", "count": 2, "modifier": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	roll := data[ws.DiceResult](t, w)
	assert.Equal(t, []int{3, 3}, roll.Rolls)
	assert.Equal(t, 7, roll.FinalResult)
	assert.Nil(t, roll.Success)

	w = srv.do(t, http.MethodPost, "/api/v1/game/roll/"+sess.ID, alice, map[string]any{"dice_type": "d3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/ai/stats/"+sess.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, stats["total_actions"])
	assert.EqualValues(t, 1, stats["total_dice_rolls"])
	// persona, greeting, action, reply, roll
	assert.EqualValues(t, 5, stats["total_messages"])

	w = srv.do(t, http.MethodGet, "/api/v1/game/state/"+sess.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[map[string]any](t, w)
	assert.Contains(t, state["last_action"], "open the door")

	srv.gen.FailWith(errors.New("quota exceeded"))
	w = srv.do(t, http.MethodPost, "/api/v1/game/action/"+sess.ID, alice, map[string]any{"action": "again"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "quota")

	w = srv.do(t, http.MethodGet, "/api/v1/ai/session-context/"+sess.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, data[map[string]any](t, w)["message_count"])

	w = srv.do(t, http.MethodDelete, "/api/v1/ai/reset-session/"+sess.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, data[map[string]any](t, w)["cleared_count"])
}

func TestMessagesRoutes(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice@example.com")
	bob := srv.register(t, "bob@example.com")
	sess := srv.createSession(t, alice, "Keep")
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/join", bob, nil).Code)

	w := srv.do(t, http.MethodPost, "/api/v1/messages/"+sess.ID, bob, map[string]string{"content": "hello, table"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	msg := data[map[string]any](t, w)
	msgID := msg["id"].(string)

	w = srv.do(t, http.MethodGet, "/api/v1/messages/"+sess.ID+"?role=user", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, list["total"])

	w = srv.do(t, http.MethodGet, "/api/v1/messages/"+sess.ID+"/"+msgID, alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/messages/"+sess.ID+"/export?format=csv", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	export := data[map[string]any](t, w)
	assert.True(t, strings.HasPrefix(export["content"].(string), "timestamp,role,content,user_id\n"))

	w = srv.do(t, http.MethodGet, "/api/v1/messages/"+sess.ID+"/export?format=pdf", bob, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodDelete, "/api/v1/messages/"+sess.ID+"/clear", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodDelete, "/api/v1/messages/"+sess.ID+"/"+msgID, bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodDelete, "/api/v1/messages/"+sess.ID+"/clear", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	// persona and greeting
	assert.EqualValues(t, 2, data[map[string]any](t, w)["cleared_count"])
}

func TestPromptAndStream(t *testing.T) {
	srv := newTestServer(t)
	token := srv.register(t, "alice@example.com")

	w := srv.do(t, http.MethodPost, "/api/v1/ai/prompt", token, map[string]any{"prompt": "Name a tavern"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, "mock-gm", resp["model"])

	w = srv.do(t, http.MethodPost, "/api/v1/ai/prompt", token, map[string]any{"prompt": "x", "temperature": 3.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/ai/stream-prompt", token, map[string]any{"prompt": "Describe the dungeon entrance in detail please"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, `data: {"chunk":`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

	srv.gen.FailWith(errors.New("boom"))
	w = srv.do(t, http.MethodPost, "/api/v1/ai/stream-prompt", token, map[string]any{"prompt": "x"})
	body = w.Body.String()
	assert.Contains(t, body, `data: {"error":"generation unavailable"}`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestModelsCatalog(t *testing.T) {
	srv := newTestServer(t)
	token := srv.register(t, "alice@example.com")

	w := srv.do(t, http.MethodGet, "/api/v1/ai/models", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := data[struct {
		Models       []config.ModelInfo `json:"models"`
		CurrentModel string             `json:"current_model"`
	}](t, w)
	assert.NotEmpty(t, out.Models)
	assert.Equal(t, "mock-gm", out.CurrentModel)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
