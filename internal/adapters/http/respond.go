package httpadapter

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeOK(c *gin.Context, status int, message string, data any) {
	writeJSON(c, status, apiResponse{Success: true, Message: message, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	writeJSON(c, http.StatusBadRequest, errorResponse{Error: msg})
}

// writeError is the only place domain error kinds become status codes.
// Upstream failures are logged in full and answered with a generic message.
func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	log := observability.LoggerFromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	writeJSON(c, status, errorResponse{Error: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusBadGateway, "upstream service unavailable"
	}
	return http.StatusInternalServerError, "internal server error"
}

// bindJSON decodes the body into v, answering 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid JSON body")
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func sessionParam(c *gin.Context) domain.SessionID {
	return domain.SessionID(c.Param("id"))
}
