package httpadapter

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PabloGalante/ttrpg-gm/internal/app/message"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// ─────────────────────────────────────────────
// Messages
// ─────────────────────────────────────────────

func (s *Server) handleListMessages(c *gin.Context) {
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	perPage, ok := queryInt(c, "per_page")
	if !ok {
		return
	}
	out, err := s.Messages.List(c.Request.Context(), currentUser(c), sessionParam(c), message.ListInput{
		Role:    domain.Role(c.Query("role")),
		Search:  c.Query("search"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, messageListResponse{
		SessionID: string(sessionParam(c)),
		Messages:  toMessagesResponse(out.Messages),
		Total:     out.Total,
		Page:      out.Page,
		PerPage:   out.PerPage,
	})
}

func (s *Server) handleCreateMessage(c *gin.Context) {
	var req createMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := s.Messages.Create(c.Request.Context(), currentUser(c), sessionParam(c), message.CreateInput{
		Content: req.Content,
		Role:    domain.Role(req.Role),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusCreated, "Message created successfully", toMessageResponse(msg))
}

func (s *Server) handleGetMessage(c *gin.Context) {
	msg, err := s.Messages.Get(c.Request.Context(), currentUser(c), sessionParam(c), domain.MessageID(c.Param("message_id")))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Message retrieved successfully", toMessageResponse(msg))
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	err := s.Messages.Delete(c.Request.Context(), currentUser(c), sessionParam(c), domain.MessageID(c.Param("message_id")))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Message deleted successfully", nil)
}

func (s *Server) handleClearMessages(c *gin.Context) {
	n, err := s.Messages.Clear(c.Request.Context(), currentUser(c), sessionParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Messages cleared successfully", gin.H{
		"session_id":    string(sessionParam(c)),
		"cleared_count": n,
	})
}

func (s *Server) handleExportMessages(c *gin.Context) {
	format, err := message.ParseFormat(c.Query("format"))
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := s.Messages.Export(c.Request.Context(), currentUser(c), sessionParam(c), format)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Messages exported successfully", gin.H{
		"session_id":    string(out.SessionID),
		"format":        string(out.Format),
		"content":       out.Content,
		"message_count": out.MessageCount,
	})
}
