package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/givebridge/givebridge/internal/models"
)

// The UI is rendered by a separate frontend; these handlers return the data
// each page needs.

func (s *Server) homePage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"page": "home"})
}

// publicPage serves the sign-in, registration and password-reset entry points.
// The gate has already redirected signed-in users away from them.
func (s *Server) publicPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"page": strings.TrimPrefix(c.Request.URL.Path, "/")})
}

type roleCount struct {
	Role  string `json:"role"`
	Count int64  `json:"count"`
}

func (s *Server) adminDashboard(c *gin.Context) {
	current, ok := s.currentUser(c)
	if !ok {
		return
	}

	var counts []roleCount
	if err := s.db.Model(&models.User{}).
		Select("role, count(*) as count").
		Group("role").
		Order("role").
		Scan(&counts).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count users by role")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var activeSessions int64
	if err := s.db.Model(&models.AuthSession{}).
		Where("revoked_at IS NULL AND expires_at > ?", time.Now().UTC()).
		Count(&activeSessions).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count active sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"page":            "admin_dashboard",
		"user":            current,
		"users_by_role":   counts,
		"active_sessions": activeSessions,
	})
}

func (s *Server) donorDashboard(c *gin.Context) {
	s.userDashboard(c, "donor_dashboard")
}

func (s *Server) volunteerDashboard(c *gin.Context) {
	s.userDashboard(c, "volunteer_dashboard")
}

func (s *Server) userDashboard(c *gin.Context, page string) {
	current, ok := s.currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"page": page,
		"user": gin.H{
			"id":    current.ID,
			"email": current.Email,
			"name":  current.Name,
			"role":  current.Role.String(),
		},
	})
}
