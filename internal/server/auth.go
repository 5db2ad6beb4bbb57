package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	"go.uber.org/zap"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        userResponse `json:"user"`
}

func (s *Server) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authsvc.Register(c.Request.Context(), authdomain.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	userID := user.ID.String()
	s.recordAuthEvent(c, &userID, "user.register", map[string]any{"username": user.Username})

	c.JSON(http.StatusCreated, gin.H{"data": toUserResponse(user)})
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	login := strings.TrimSpace(req.Username)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Login:    login,
		Password: req.Password,
	})
	if err != nil {
		s.recordAuthEvent(c, nil, "user.login_failed", map[string]any{"login": login})
		AbortWithError(c, err)
		return
	}

	userID := result.User.ID.String()
	s.recordAuthEvent(c, &userID, "user.login", map[string]any{"username": result.User.Username})

	c.JSON(http.StatusOK, loginResponse{
		AccessToken: result.Token,
		TokenType:   "Bearer",
		ExpiresAt:   result.ExpiresAt,
		User:        toUserResponse(result.User),
	})
}

func (s *Server) Me(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	user, err := s.authsvc.GetUser(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toUserResponse(user)})
}

func (s *Server) recordAuthEvent(c *gin.Context, userID *string, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(c.Request.Context(), string(auditdomain.ActorTypeUser), userID, action, auditdomain.TargetUser, userID, metadata); err != nil {
		s.log.Warn("failed to record auth activity", zap.String("action", action), zap.Error(err))
	}
}

func toUserResponse(user *authdomain.User) userResponse {
	return userResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}
}
