package httpadapter

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// ─────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	out, err := s.Sessions.Create(c.Request.Context(), currentUser(c), session.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		MaxPlayers:  req.MaxPlayers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusCreated, "Session created successfully", createSessionResponse{
		Session:  toSessionResponse(out.Session),
		Greeting: out.Greeting,
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	perPage, ok := queryInt(c, "per_page")
	if !ok {
		return
	}
	status := domain.SessionStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		badRequest(c, "unknown status")
		return
	}

	out, err := s.Sessions.List(c.Request.Context(), currentUser(c), session.ListInput{
		Status:  status,
		Search:  c.Query("search"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := sessionListResponse{
		Sessions: make([]sessionResponse, 0, len(out.Sessions)),
		Total:    out.Total,
		Page:     out.Page,
		PerPage:  out.PerPage,
	}
	for _, sess := range out.Sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(sess))
	}
	writeJSON(c, http.StatusOK, resp)
}

func (s *Server) handleGetSession(c *gin.Context) {
	details, err := s.Sessions.Get(c.Request.Context(), currentUser(c), sessionParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Session retrieved successfully", toSessionDetailsResponse(details))
}

func (s *Server) handleUpdateSession(c *gin.Context) {
	var req updateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	in := session.UpdateInput{Title: req.Title, Description: req.Description}
	if req.Status != nil {
		st := domain.SessionStatus(*req.Status)
		in.Status = &st
	}
	sess, err := s.Sessions.Update(c.Request.Context(), currentUser(c), sessionParam(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Session updated successfully", toSessionResponse(sess))
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.Sessions.Delete(c.Request.Context(), currentUser(c), sessionParam(c)); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Session deleted successfully", nil)
}

func (s *Server) handleJoinSession(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.Sessions.Join(ctx, currentUser(c), sessionParam(c)); err != nil {
		writeError(c, err)
		return
	}
	details, err := s.Sessions.Get(ctx, currentUser(c), sessionParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Joined session successfully", toSessionDetailsResponse(details))
}

func (s *Server) handleLeaveSession(c *gin.Context) {
	if err := s.Sessions.Leave(c.Request.Context(), currentUser(c), sessionParam(c)); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Left session successfully", nil)
}

func (s *Server) handleParticipants(c *gin.Context) {
	views, err := s.Sessions.Participants(c.Request.Context(), currentUser(c), sessionParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Participants retrieved successfully", gin.H{
		"session_id":   string(sessionParam(c)),
		"participants": toParticipantsResponse(views),
	})
}

func (s *Server) changeStatus(c *gin.Context, op func(*gin.Context) (*domain.Session, error), message string) {
	sess, err := op(c)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, message, statusChangeResponse{SessionID: string(sess.ID), Status: string(sess.Status)})
}

func (s *Server) handlePause(c *gin.Context) {
	s.changeStatus(c, func(c *gin.Context) (*domain.Session, error) {
		return s.Sessions.Pause(c.Request.Context(), currentUser(c), sessionParam(c))
	}, "Session paused successfully")
}

func (s *Server) handleResume(c *gin.Context) {
	s.changeStatus(c, func(c *gin.Context) (*domain.Session, error) {
		return s.Sessions.Resume(c.Request.Context(), currentUser(c), sessionParam(c))
	}, "Session resumed successfully")
}

func (s *Server) handleComplete(c *gin.Context) {
	s.changeStatus(c, func(c *gin.Context) (*domain.Session, error) {
		return s.Sessions.Complete(c.Request.Context(), currentUser(c), sessionParam(c))
	}, "Session completed successfully")
}
