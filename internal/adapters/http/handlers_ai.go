package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/ws"
	"github.com/PabloGalante/ttrpg-gm/internal/app/dice"
	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/app/turn"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

// ─────────────────────────────────────────────
// Direct prompts
// ─────────────────────────────────────────────

func (in promptRequest) toInput() turn.PromptInput {
	return turn.PromptInput{Prompt: in.Prompt, Temperature: in.Temperature, MaxTokens: in.MaxTokens}
}

func (s *Server) handlePrompt(c *gin.Context) {
	var req promptRequest
	if !bindJSON(c, &req) {
		return
	}
	gen, err := s.Turns.Prompt(c.Request.Context(), req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}
	model := gen.Model
	if model == "" {
		model = s.Turns.Model()
	}
	writeJSON(c, http.StatusOK, promptResponse{
		Response:   gen.Text,
		TokensUsed: gen.TokensUsed,
		Model:      model,
		Timestamp:  time.Now().UTC(),
	})
}

// handleStreamPrompt relays fragments as server-sent events and always ends
// with a [DONE] event. Errors after the first byte become an error event.
func (s *Server) handleStreamPrompt(c *gin.Context) {
	var req promptRequest
	if !bindJSON(c, &req) {
		return
	}
	stream, err := s.Turns.StreamPrompt(c.Request.Context(), req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	w := c.Writer
	for chunk, err := range stream {
		if err != nil {
			observability.LoggerFromContext(c.Request.Context()).Error("stream failed", "error", err)
			writeEvent(w, map[string]string{"error": "generation unavailable"})
			break
		}
		writeEvent(w, map[string]string{"chunk": chunk})
		w.Flush()
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	w.Flush()
}

func writeEvent(w io.Writer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
}

func (s *Server) handleModels(c *gin.Context) {
	writeOK(c, http.StatusOK, "Available models retrieved successfully", gin.H{
		"models":        s.Catalog.Models,
		"current_model": s.Turns.Model(),
	})
}

// ─────────────────────────────────────────────
// Session play
// ─────────────────────────────────────────────

func (s *Server) handleInitialize(c *gin.Context) {
	ctx := c.Request.Context()
	id := sessionParam(c)
	if _, err := s.Sessions.Access(ctx, currentUser(c), id, session.PermManage); err != nil {
		writeError(c, err)
		return
	}
	greeting := s.Turns.InitializeSession(ctx, id)
	writeOK(c, http.StatusOK, "AI Game Master initialized successfully", initializeResponse{
		SessionID:       string(id),
		InitialResponse: greeting,
		Timestamp:       time.Now().UTC(),
	})
}

// handleProcessAction answers upstream failures with 502 instead of the
// placeholder reply used on the real-time path.
func (s *Server) handleProcessAction(c *gin.Context) {
	var req ws.ActionRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	id := sessionParam(c)
	user := currentUser(c)
	if _, err := s.Sessions.Access(ctx, user, id, session.PermPlay); err != nil {
		writeError(c, err)
		return
	}
	res, err := s.Turns.ProcessAction(ctx, id, req.ToAction(user))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Game action processed successfully", ws.ToGMResponse(res))
}

func (s *Server) handleRollDice(c *gin.Context) {
	var req ws.DiceRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	id := sessionParam(c)
	user := currentUser(c)
	if _, err := s.Sessions.Access(ctx, user, id, session.PermConnect); err != nil {
		writeError(c, err)
		return
	}
	out, err := s.Dice.Roll(ctx, id, req.Spec(), dice.RollOptions{Record: true, UserID: user})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Dice roll processed successfully", ws.ToDiceResult(out))
}

func (s *Server) handleSessionContext(c *gin.Context) {
	ctx := c.Request.Context()
	id := sessionParam(c)
	if _, err := s.Sessions.Access(ctx, currentUser(c), id, session.PermView); err != nil {
		writeError(c, err)
		return
	}
	sc, err := s.Turns.SessionContext(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Session context retrieved successfully", toSessionContextResponse(sc))
}

func (s *Server) handleResetSession(c *gin.Context) {
	ctx := c.Request.Context()
	id := sessionParam(c)
	if _, err := s.Sessions.Access(ctx, currentUser(c), id, session.PermManage); err != nil {
		writeError(c, err)
		return
	}
	n, err := s.Turns.ResetContext(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Session context reset successfully", gin.H{
		"session_id":    string(id),
		"cleared_count": n,
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	id := sessionParam(c)
	if _, err := s.Sessions.Access(ctx, currentUser(c), id, session.PermView); err != nil {
		writeError(c, err)
		return
	}
	stats, err := s.Turns.Stats(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toStatsResponse(stats))
}

func (s *Server) handleGameState(c *gin.Context) {
	ctx := c.Request.Context()
	id := sessionParam(c)
	if _, err := s.Sessions.Access(ctx, currentUser(c), id, session.PermView); err != nil {
		writeError(c, err)
		return
	}
	state, err := s.Turns.GameState(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toGameStateResponse(state))
}
