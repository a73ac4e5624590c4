package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/givebridge/givebridge/internal/auth"
	"github.com/givebridge/givebridge/internal/models"
)

const (
	DefaultCookieName    = "auth_token"
	DefaultTTL           = 24 * time.Hour
	DefaultLookupTimeout = 2 * time.Second
)

// Options configures a CookieSource
type Options struct {
	CookieName    string
	TTL           time.Duration
	LookupTimeout time.Duration
	SecureCookie  bool
	// Cache is optional; nil disables user caching
	Cache UserCache
}

// CookieSource reads session tokens from a cookie and resolves them against
// the persisted login sessions and users.
type CookieSource struct {
	db      *gorm.DB
	signer  *auth.Signer
	opts    Options
	logger  zerolog.Logger
	nowFunc func() time.Time
}

// NewCookieSource creates a cookie-backed session source
func NewCookieSource(db *gorm.DB, signer *auth.Signer, opts Options, logger zerolog.Logger) *CookieSource {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}

	return &CookieSource{
		db:      db,
		signer:  signer,
		opts:    opts,
		logger:  logger.With().Str("component", "session").Logger(),
		nowFunc: time.Now,
	}
}

// CookieName returns the name of the session cookie
func (s *CookieSource) CookieName() string {
	return s.opts.CookieName
}

// Token returns the session cookie value, if any
func (s *CookieSource) Token(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// UserData resolves a token to its user. Invalid, expired or revoked tokens,
// missing users and slow lookups all yield (nil, false).
func (s *CookieSource) UserData(ctx context.Context, token string) (*User, bool) {
	claims, err := s.signer.Validate(token)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Rejected session token")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()

	var record models.AuthSession
	if err := s.db.WithContext(ctx).Where("id = ?", claims.ID).First(&record).Error; err != nil {
		s.logLookupError(err, "session_id", claims.ID, "Session record lookup failed")
		return nil, false
	}

	if !record.Active(s.nowFunc()) || record.UserID != claims.UserID {
		s.logger.Debug().Str("session_id", record.ID).Msg("Session is revoked, expired or mismatched")
		return nil, false
	}

	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		s.logLookupError(err, "user_id", claims.UserID, "User lookup failed")
		return nil, false
	}
	return user, true
}

func (s *CookieSource) loadUser(ctx context.Context, userID string) (*User, error) {
	// Read the version before the record so an Invalidate in between
	// makes the Set below a no-op
	var version int64 = -1
	if s.opts.Cache != nil {
		version = s.opts.Cache.Version(ctx, userID)
		if user, ok := s.opts.Cache.Get(ctx, userID); ok {
			return user, nil
		}
	}

	var record models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&record).Error; err != nil {
		return nil, err
	}

	user := FromModel(&record)
	if s.opts.Cache != nil {
		s.opts.Cache.Set(ctx, user, version)
	}
	return user, nil
}

func (s *CookieSource) logLookupError(err error, key, value, msg string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Debug().Str(key, value).Msg(msg)
		return
	}
	s.logger.Warn().Err(err).Str(key, value).Msg(msg)
}

// Start issues a new session for user, persists its record and sets the cookie
func (s *CookieSource) Start(ctx context.Context, w http.ResponseWriter, r *http.Request, user *models.User) (*auth.JWTClaims, error) {
	token, claims, err := s.signer.Issue(user.ID, user.RoleValue(), s.opts.TTL)
	if err != nil {
		return nil, err
	}

	record := &models.AuthSession{
		ID:        claims.ID,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		UserAgent: r.UserAgent(),
		ClientIP:  r.RemoteAddr,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		MaxAge:   int(s.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return claims, nil
}

// End revokes the request's session record (if any) and clears the cookie
func (s *CookieSource) End(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer s.Clear(w)

	token, ok := s.Token(r)
	if !ok {
		return nil
	}
	claims, err := s.signer.Validate(token)
	if err != nil {
		return nil
	}

	now := s.nowFunc().UTC()
	err = s.db.WithContext(ctx).
		Model(&models.AuthSession{}).
		Where("id = ? AND revoked_at IS NULL", claims.ID).
		Update("revoked_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// Clear expires the session cookie on the client
func (s *CookieSource) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Invalidate drops a cached user record after it changed or was deleted
func (s *CookieSource) Invalidate(ctx context.Context, userID string) {
	if s.opts.Cache != nil {
		s.opts.Cache.Invalidate(ctx, userID)
	}
}

// FromModel converts a stored user to a session user
func FromModel(u *models.User) *User {
	return &User{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.RoleValue(),
	}
}
