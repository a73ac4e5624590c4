package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/givebridge/givebridge/internal/auth"
	"github.com/givebridge/givebridge/internal/models"
)

// CreateUserRequest represents a request to create a new user
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,known_role"`
}

// UpdateRoleRequest changes a user's role
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,known_role"`
}

// listUsers lists all users, newest first
func (s *Server) listUsers(c *gin.Context) {
	var users []models.User
	if err := s.db.Order("created_at DESC").Find(&users).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	userDetails := make([]*UserDetail, len(users))
	for i := range users {
		userDetails[i] = userDetail(&users[i])
	}

	c.JSON(http.StatusOK, userDetails)
}

// createUser creates a user with any known role
func (s *Server) createUser(c *gin.Context) {
	current, ok := s.currentUser(c)
	if !ok {
		return
	}

	var req CreateUserRequest
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

	s.logger.Info().
		Str("user_id", user.ID).
		Str("role", user.Role).
		Str("created_by", current.ID).
		Msg("User created")

	c.JSON(http.StatusCreated, userDetail(user))
}

// updateUserRole changes a user's role; cached records are dropped so the
// gate sees the new role on the next request
func (s *Server) updateUserRole(c *gin.Context) {
	current, ok := s.currentUser(c)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !s.bind(c, &req) {
		return
	}

	userID := c.Param("id")
	if userID == current.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot change your own role"})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, userID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := s.db.Model(&user).Update("role", req.Role).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update role")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update role"})
		return
	}
	s.sessions.Invalidate(c.Request.Context(), user.ID)

	s.logger.Info().
		Str("user_id", user.ID).
		Str("role", req.Role).
		Str("changed_by", current.ID).
		Msg("User role changed")

	c.JSON(http.StatusOK, userDetail(&user))
}

// deleteUser deletes a user and all of their sessions (cannot delete self)
func (s *Server) deleteUser(c *gin.Context) {
	current, ok := s.currentUser(c)
	if !ok {
		return
	}

	userID := c.Param("id")
	if userID == current.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, userID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.AuthSession{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}
	s.sessions.Invalidate(c.Request.Context(), user.ID)

	s.logger.Info().
		Str("user_id", userID).
		Str("deleted_by", current.ID).
		Msg("User deleted")

	c.Status(http.StatusNoContent)
}
