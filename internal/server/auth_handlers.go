package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/givebridge/givebridge/internal/auth"
	"github.com/givebridge/givebridge/internal/gate"
	"github.com/givebridge/givebridge/internal/models"
)

// SetupRequest represents the first-run setup request
type SetupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents a self-service registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=120"`
	Role     string `json:"role" validate:"required,selfservice_role"`
}

// SessionResponse is returned when a session is started
type SessionResponse struct {
	User     *UserDetail `json:"user"`
	Redirect string      `json:"redirect"`
}

// UserDetail represents user information returned in responses
type UserDetail struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func userDetail(user *models.User) *UserDetail {
	return &UserDetail{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

// bind decodes the JSON body into req and validates it, answering 400 on failure
func (s *Server) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isDuplicateKey reports whether err is a unique constraint violation
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// emailAvailable answers 409 when the email already belongs to an account
func (s *Server) emailAvailable(c *gin.Context, email string) bool {
	var existing int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check existing user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return false
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return false
	}
	return true
}

// createAccount inserts user. A concurrent insert of the same email loses
// the race on the unique index and is answered with 409.
func (s *Server) createAccount(c *gin.Context, user *models.User) bool {
	err := s.db.Create(user).Error
	if err == nil {
		return true
	}
	if isDuplicateKey(err) {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return false
	}
	s.logger.Error().Err(err).Msg("Failed to create user")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
	return false
}

// startSession signs the user in and answers with their landing page
func (s *Server) startSession(c *gin.Context, user *models.User, status int) {
	if _, err := s.sessions.Start(c.Request.Context(), c.Writer, c.Request, user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to start session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		return
	}

	c.JSON(status, SessionResponse{
		User:     userDetail(user),
		Redirect: gate.DashboardFor(user.RoleValue()),
	})
}

// setupFirstAdmin creates the first admin user (only works if no users exist)
func (s *Server) setupFirstAdmin(c *gin.Context) {
	var req SetupRequest
	if !s.bind(c, &req) {
		return
	}

	var count int64
	if err := s.db.Model(&models.User{}).Count(&count).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Setup already completed"})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	user := &models.User{
		Email:        normalizeEmail(req.Email),
		PasswordHash: passwordHash,
		Name:         req.Name,
		Role:         auth.RoleAdmin.String(),
	}

	if err := s.db.Create(user).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create admin user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("First admin user created")

	s.startSession(c, user, http.StatusOK)
}

// login authenticates with email and password and sets the session cookie
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if !s.bind(c, &req) {
		return
	}

	var user models.User
	if err := s.db.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Same bcrypt cost as a wrong password so timing does not reveal accounts
			_ = auth.VerifyMissingAccount(req.Password)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("User logged in")

	s.startSession(c, &user, http.StatusOK)
}

// register creates a donor or volunteer account and signs it in
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if !s.bind(c, &req) {
		return
	}

	email := normalizeEmail(req.Email)
	if !s.emailAvailable(c, email) {
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		Role:         req.Role,
	}
	if !s.createAccount(c, user) {
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("User registered")

	s.startSession(c, user, http.StatusCreated)
}

// logout revokes the current session and clears the cookie
func (s *Server) logout(c *gin.Context) {
	if err := s.sessions.End(c.Request.Context(), c.Writer, c.Request); err != nil {
		s.logger.Error().Err(err).Msg("Failed to revoke session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign out"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"redirect": gate.PathLogin})
}

// getCurrentUser returns the signed-in user
func (s *Server) getCurrentUser(c *gin.Context) {
	current, ok := s.currentUser(c)
	if !ok {
		return
	}

	var user models.User
	if err := models.FindByID(s.db, current.ID, &user); err != nil {
		s.logger.Error().Err(err).Str("user_id", current.ID).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, userDetail(&user))
}
