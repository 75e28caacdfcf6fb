// Package httpadapter exposes the Game Master API over HTTP with gin.
package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/identity"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/ws"
	"github.com/PabloGalante/ttrpg-gm/internal/app/account"
	"github.com/PabloGalante/ttrpg-gm/internal/app/dice"
	"github.com/PabloGalante/ttrpg-gm/internal/app/message"
	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/app/turn"
	"github.com/PabloGalante/ttrpg-gm/internal/config"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// HealthCheck is one dependency reported by /health.
type HealthCheck struct {
	Name   string
	Pinger domain.Pinger
}

// Deps are the services the HTTP API is built on.
type Deps struct {
	Accounts    *account.Service
	Verifier    identity.Verifier
	Sessions    *session.Service
	Messages    *message.Service
	Turns       *turn.Service
	Dice        *dice.Service
	Gateway     *ws.Gateway
	Catalog     *config.Catalog
	Checks      []HealthCheck
	CORSOrigins []string
	Version     string
}

type Server struct {
	Deps
}

func NewServer(deps Deps) http.Handler {
	s := &Server{Deps: deps}

	r := gin.New()
	r.Use(gin.Recovery(), withRequestID(), withLogging(), withCORS(deps.CORSOrigins))

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")

	// the gateway authenticates the upgrade itself
	v1.GET("/ws/session/:id", func(c *gin.Context) {
		s.Gateway.Serve(c.Writer, c.Request, sessionParam(c))
	})

	auth := v1.Group("/auth")
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)
	auth.POST("/refresh", s.handleRefresh)

	protected := v1.Group("", requireAuth(deps.Verifier))
	protected.POST("/auth/logout", s.handleLogout)
	protected.GET("/auth/me", s.handleMe)
	protected.POST("/auth/change-password", s.handleChangePassword)

	sessions := protected.Group("/sessions")
	sessions.POST("", s.handleCreateSession)
	sessions.GET("", s.handleListSessions)
	sessions.GET("/:id", s.handleGetSession)
	sessions.PUT("/:id", s.handleUpdateSession)
	sessions.DELETE("/:id", s.handleDeleteSession)
	sessions.POST("/:id/join", s.handleJoinSession)
	sessions.POST("/:id/leave", s.handleLeaveSession)
	sessions.GET("/:id/participants", s.handleParticipants)

	messages := protected.Group("/messages")
	messages.GET("/:id", s.handleListMessages)
	messages.POST("/:id", s.handleCreateMessage)
	messages.GET("/:id/export", s.handleExportMessages)
	messages.DELETE("/:id/clear", s.handleClearMessages)
	messages.GET("/:id/:message_id", s.handleGetMessage)
	messages.DELETE("/:id/:message_id", s.handleDeleteMessage)

	ai := protected.Group("/ai")
	ai.POST("/prompt", s.handlePrompt)
	ai.POST("/stream-prompt", s.handleStreamPrompt)
	ai.POST("/initialize-session/:id", s.handleInitialize)
	ai.POST("/process-action/:id", s.handleProcessAction)
	ai.POST("/roll-dice/:id", s.handleRollDice)
	ai.GET("/session-context/:id", s.handleSessionContext)
	ai.DELETE("/reset-session/:id", s.handleResetSession)
	ai.GET("/models", s.handleModels)
	ai.GET("/stats/:id", s.handleStats)

	game := protected.Group("/game")
	game.POST("/action/:id", s.handleProcessAction)
	game.POST("/roll/:id", s.handleRollDice)
	game.POST("/initialize/:id", s.handleInitialize)
	game.GET("/state/:id", s.handleGameState)
	game.POST("/pause/:id", s.handlePause)
	game.POST("/resume/:id", s.handleResume)
	game.POST("/complete/:id", s.handleComplete)

	return r
}

// ─────────────────────────────────────────────
// Service info
// ─────────────────────────────────────────────

func (s *Server) handleRoot(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"message":     "TTRPG Game Master API",
		"version":     s.Version,
		"description": "AI-powered Tabletop RPG platform",
		"endpoints": gin.H{
			"authentication": "/api/v1/auth",
			"sessions":       "/api/v1/sessions",
			"game":           "/api/v1/game",
			"messages":       "/api/v1/messages",
			"ai":             "/api/v1/ai",
			"websocket":      "/api/v1/ws/session/{session_id}",
		},
	})
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

// handleHealth always answers 200; a failing dependency marks it degraded.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.Version,
		Services:  map[string]string{},
	}
	for _, check := range s.Checks {
		if err := check.Pinger.Ping(ctx); err != nil {
			resp.Services[check.Name] = "unhealthy: " + err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Services[check.Name] = "healthy"
	}
	if s.Turns != nil && s.Turns.Model() != "" {
		resp.Services["ai"] = "healthy"
	} else {
		resp.Services["ai"] = "unhealthy: no generator configured"
		resp.Status = "degraded"
	}
	writeJSON(c, http.StatusOK, resp)
}
