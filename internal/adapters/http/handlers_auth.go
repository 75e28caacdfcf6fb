package httpadapter

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PabloGalante/ttrpg-gm/internal/app/account"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// ─────────────────────────────────────────────
// Authentication
// ─────────────────────────────────────────────

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.Accounts.Register(c.Request.Context(), account.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Role:     domain.UserRole(req.Role),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusCreated, "User registered successfully", toAuthResponse(out.User, out.Tokens))
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Login successful", toAuthResponse(out.User, out.Tokens))
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	tokens, err := s.Accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Token refreshed successfully", toAuthResponse(nil, tokens))
}

// handleLogout only acknowledges; tokens are stateless and expire on their own.
func (s *Server) handleLogout(c *gin.Context) {
	writeOK(c, http.StatusOK, "Logout successful", nil)
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.Accounts.Me(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "User retrieved successfully", toUserResponse(user))
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.Accounts.ChangePassword(c.Request.Context(), currentUser(c), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, "Password changed successfully", nil)
}
