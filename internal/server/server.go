// Package server wires the givebridge HTTP surface: the access gate in front
// of the public, admin and user areas, plus the session API.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/givebridge/givebridge/internal/auth"
	"github.com/givebridge/givebridge/internal/config"
	"github.com/givebridge/givebridge/internal/gate"
	"github.com/givebridge/givebridge/internal/models"
	"github.com/givebridge/givebridge/internal/routes"
	"github.com/givebridge/givebridge/internal/session"
)

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    *config.Config
	logger    zerolog.Logger
	validator *validator.Validate
	routes    *routes.Table
	sessions  *session.CookieSource
	redis     *redis.Client
	version   string
}

// New creates a new server instance backed by the configured database
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	db, err := InitDatabase(cfg, zlog)
	if err != nil {
		return nil, err
	}
	return NewWithDB(cfg, db, zlog, version)
}

// NewWithDB creates a server on an already opened database
func NewWithDB(cfg *config.Config, db *gorm.DB, zlog zerolog.Logger, version string) (*Server, error) {
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	signer, err := auth.NewSigner(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	table, err := LoadRouteTable(cfg)
	if err != nil {
		return nil, err
	}

	opts := session.Options{
		CookieName:    cfg.Auth.CookieName,
		TTL:           cfg.Auth.SessionTTL,
		LookupTimeout: cfg.Auth.LookupTimeout,
		SecureCookie:  !cfg.Server.IsDevelopment(),
	}

	var redisClient *redis.Client
	if cfg.Redis.UserCacheEnabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address})
		opts.Cache = session.NewRedisUserCache(redisClient, cfg.Redis.UserCacheTTL, zlog)
		zlog.Info().Str("redis", cfg.Redis.Address).Msg("User cache enabled")
	}

	server := &Server{
		db:        db,
		config:    cfg,
		logger:    zlog,
		validator: newValidator(),
		routes:    table,
		sessions:  session.NewCookieSource(db, signer, opts, zlog),
		redis:     redisClient,
		version:   version,
	}

	server.setupRouter()

	return server, nil
}

// LoadRouteTable returns the route table file named in cfg, or the default table
func LoadRouteTable(cfg *config.Config) (*routes.Table, error) {
	if cfg.Routes.File == "" {
		return routes.Default(), nil
	}
	table, err := routes.LoadFile(cfg.Routes.File)
	if err != nil {
		return nil, err
	}
	return table, nil
}

// newValidator builds the request validator with the project's custom tags
func newValidator() *validator.Validate {
	validate := validator.New()

	// Roles a visitor may pick when registering
	validate.RegisterValidation("selfservice_role", func(fl validator.FieldLevel) bool {
		return auth.ParseRole(fl.Field().String()).SelfService()
	})

	// Any role an administrator may assign
	validate.RegisterValidation("known_role", func(fl validator.FieldLevel) bool {
		return auth.ParseRole(fl.Field().String()).Known()
	})

	return validate
}

// InitDatabase initializes the database connection with production settings
func InitDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		maxOpenConns    = 8
		maxIdleConns    = 4
		connMaxLifetime = 300  // 5 minutes
		busyTimeout     = 5000 // 5 seconds
	)

	db, err := gorm.Open(sqlite.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode must be set first
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA foreign_keys=1",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	return db, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	if s.config.Server.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Location"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// The access gate only acts on paths covered by the route table matchers
	s.router.Use(gate.Middleware(s.routes, s.sessions, s.logger))

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/", s.homePage)

	// Session API (outside the gate; answers with status codes, not redirects)
	s.router.POST("/api/setup", s.setupFirstAdmin)
	s.router.POST("/api/auth/login", s.login)
	s.router.POST("/api/auth/register", s.register)
	s.router.POST("/api/auth/logout", s.logout)

	api := s.router.Group("/api")
	api.Use(RequireSession(s.sessions, s.logger))
	{
		api.GET("/auth/me", s.getCurrentUser)
	}

	// Public entry points
	for _, page := range []string{"/donor_login", "/volunteer_login", "/register", "/forgot-password"} {
		s.router.GET(page, s.publicPage)
	}

	// Admin area
	admin := s.router.Group("/admin")
	{
		admin.GET("/dashboard", s.adminDashboard)
		admin.GET("/users", s.listUsers)
		admin.POST("/users", s.createUser)
		admin.PATCH("/users/:id/role", s.updateUserRole)
		admin.DELETE("/users/:id", s.deleteUser)
	}

	// End-user area
	user := s.router.Group("/user")
	{
		user.GET("/donor/dashboard", s.donorDashboard)
		user.GET("/volunteer/dashboard", s.volunteerDashboard)
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		event := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "givebridge",
		"version":   s.version,
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// GetDB returns the database connection for use by workers
func (s *Server) GetDB() *gorm.DB {
	return s.db
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM
func (s *Server) Start() error {
	addr := s.config.Server.ListenAddr

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("HTTP server error")
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing Redis client")
		}
	}

	// Close database connection to flush WAL writes
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		}
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
