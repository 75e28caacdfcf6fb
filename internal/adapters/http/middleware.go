package httpadapter

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/identity"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/ws"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

const (
	headerRequestID = "X-Request-ID"
	ctxIdentity     = "identity"
)

// withRequestID reuses the caller's X-Request-ID or mints one, and stores it
// in the request context for the logger.
func withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), reqID))
		c.Next()
	}
}

// withLogging logs every request once it has been served.
func withLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		observability.LoggerFromContext(c.Request.Context()).Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// withCORS allows the configured origins. "*" allows any.
func withCORS(origins []string) gin.HandlerFunc {
	anyOrigin := len(origins) == 0 || slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case anyOrigin:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.ContainsFunc(origins, func(o string) bool { return strings.EqualFold(o, origin) }):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireAuth rejects requests without a valid access token.
func requireAuth(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ws.BearerToken(c.Request)
		if token == "" {
			writeError(c, domain.NewError(domain.ErrUnauthenticated, "authentication required"))
			c.Abort()
			return
		}
		ident, err := verifier.Verify(token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxIdentity, ident)
		c.Next()
	}
}

func currentIdentity(c *gin.Context) *identity.Identity {
	v, _ := c.Get(ctxIdentity)
	ident, _ := v.(*identity.Identity)
	return ident
}

func currentUser(c *gin.Context) domain.UserID {
	if ident := currentIdentity(c); ident != nil {
		return ident.UserID
	}
	return ""
}
