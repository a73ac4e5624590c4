package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/givebridge/givebridge/internal/auth"
	"github.com/givebridge/givebridge/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func newTestSource(t *testing.T, cache UserCache) (*CookieSource, *gorm.DB) {
	t.Helper()

	db := openTestDB(t)
	signer, err := auth.NewSigner(testSecret)
	require.NoError(t, err)

	src := NewCookieSource(db, signer, Options{Cache: cache}, zerolog.Nop())
	return src, db
}

func createUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()

	user := &models.User{Email: email, PasswordHash: "x", Name: "Test", Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

// startSession signs the user in and returns a request carrying the cookie
func startSession(t *testing.T, src *CookieSource, user *models.User) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	_, err := src.Start(context.Background(), rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil), user)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/user/donor/dashboard", nil)
	req.AddCookie(cookies[0])
	return req
}

func TestCookieSource_Token(t *testing.T) {
	src, _ := newTestSource(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := src.Token(req)
	assert.False(t, ok)

	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: ""})
	_, ok = src.Token(req)
	assert.False(t, ok)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "abc"})
	token, ok := src.Token(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}

func TestCookieSource_StartAndResolve(t *testing.T) {
	src, db := newTestSource(t, nil)
	user := createUser(t, db, "vol@example.org", "volunteer")

	req := startSession(t, src, user)
	sess := Resolve(context.Background(), src, req)

	require.True(t, sess.Authenticated())
	require.True(t, sess.Resolved())
	assert.Equal(t, user.ID, sess.User.ID)
	assert.Equal(t, auth.RoleVolunteer, sess.User.Role)
}

func TestCookieSource_EndRevokes(t *testing.T) {
	src, db := newTestSource(t, nil)
	user := createUser(t, db, "donor@example.org", "donor")
	req := startSession(t, src, user)

	rec := httptest.NewRecorder()
	require.NoError(t, src.End(context.Background(), rec, req))

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	token, _ := src.Token(req)
	_, ok := src.UserData(context.Background(), token)
	assert.False(t, ok)
}

func TestCookieSource_ExpiredRecord(t *testing.T) {
	src, db := newTestSource(t, nil)
	user := createUser(t, db, "donor@example.org", "donor")
	req := startSession(t, src, user)

	src.nowFunc = func() time.Time { return time.Now().Add(48 * time.Hour) }

	token, _ := src.Token(req)
	_, ok := src.UserData(context.Background(), token)
	assert.False(t, ok)
}

func TestCookieSource_DeletedUser(t *testing.T) {
	src, db := newTestSource(t, nil)
	user := createUser(t, db, "donor@example.org", "donor")
	req := startSession(t, src, user)

	require.NoError(t, db.Exec("PRAGMA foreign_keys = OFF").Error)
	require.NoError(t, db.Delete(&models.User{}, "id = ?", user.ID).Error)

	sess := Resolve(context.Background(), src, req)
	assert.True(t, sess.Authenticated())
	assert.False(t, sess.Resolved())
}

func TestCookieSource_InvalidToken(t *testing.T) {
	src, _ := newTestSource(t, nil)

	_, ok := src.UserData(context.Background(), "garbage")
	assert.False(t, ok)
}

func TestCookieSource_UnknownSessionRecord(t *testing.T) {
	src, db := newTestSource(t, nil)
	user := createUser(t, db, "admin@example.org", "admin")

	signer, err := auth.NewSigner(testSecret)
	require.NoError(t, err)
	token, _, err := signer.Issue(user.ID, auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	_, ok := src.UserData(context.Background(), token)
	assert.False(t, ok)
}

type fakeCache struct {
	mu          sync.Mutex
	users       map[string]*User
	versions    map[string]int64
	sets        int
	invalidated []string

	// onMiss runs after a Get miss, outside the lock
	onMiss func(id string)
}

func newFakeCache() *fakeCache {
	return &fakeCache{users: make(map[string]*User), versions: make(map[string]int64)}
}

func (f *fakeCache) Get(_ context.Context, id string) (*User, bool) {
	f.mu.Lock()
	u, ok := f.users[id]
	onMiss := f.onMiss
	f.mu.Unlock()

	if !ok && onMiss != nil {
		onMiss(id)
	}
	return u, ok
}

func (f *fakeCache) Version(_ context.Context, id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[id]
}

func (f *fakeCache) Set(_ context.Context, u *User, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if version != f.versions[u.ID] {
		return
	}
	f.sets++
	f.users[u.ID] = u
}

func (f *fakeCache) Invalidate(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	f.versions[id]++
	f.invalidated = append(f.invalidated, id)
}

func TestCookieSource_UsesCache(t *testing.T) {
	cache := newFakeCache()
	src, db := newTestSource(t, cache)
	user := createUser(t, db, "donor@example.org", "donor")
	req := startSession(t, src, user)
	token, _ := src.Token(req)

	_, ok := src.UserData(context.Background(), token)
	require.True(t, ok)
	assert.Equal(t, 1, cache.sets)

	// Role change visible only through the cache until invalidated
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("role", "volunteer").Error)

	got, ok := src.UserData(context.Background(), token)
	require.True(t, ok)
	assert.Equal(t, auth.RoleDonor, got.Role)
	assert.Equal(t, 1, cache.sets)

	src.Invalidate(context.Background(), user.ID)
	got, ok = src.UserData(context.Background(), token)
	require.True(t, ok)
	assert.Equal(t, auth.RoleVolunteer, got.Role)
	assert.Equal(t, []string{user.ID}, cache.invalidated)
}

// A role change that lands while a request is loading the old record must
// not leave the old role cached.
func TestCookieSource_InvalidateDuringLoadIsNotCached(t *testing.T) {
	cache := newFakeCache()
	src, db := newTestSource(t, cache)
	user := createUser(t, db, "donor@example.org", "donor")
	req := startSession(t, src, user)
	token, _ := src.Token(req)

	cache.onMiss = func(id string) {
		cache.onMiss = nil
		require.NoError(t, db.Model(&models.User{}).Where("id = ?", id).Update("role", "volunteer").Error)
		src.Invalidate(context.Background(), id)
	}

	// This load started before the invalidation; its result is not cached
	_, ok := src.UserData(context.Background(), token)
	require.True(t, ok)
	assert.Equal(t, 0, cache.sets)

	got, ok := src.UserData(context.Background(), token)
	require.True(t, ok)
	assert.Equal(t, auth.RoleVolunteer, got.Role)
	assert.Equal(t, 1, cache.sets)

	cached, ok := cache.Get(context.Background(), user.ID)
	require.True(t, ok)
	assert.Equal(t, auth.RoleVolunteer, cached.Role)
}

type countingSource struct {
	token     string
	user      *User
	userCalls int
}

func (c *countingSource) Token(*http.Request) (string, bool) {
	return c.token, c.token != ""
}

func (c *countingSource) UserData(context.Context, string) (*User, bool) {
	c.userCalls++
	return c.user, c.user != nil
}

func TestResolve_SkipsUserLookupWithoutToken(t *testing.T) {
	src := &countingSource{user: &User{ID: "u1", Role: auth.RoleAdmin}}

	sess := Resolve(context.Background(), src, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, sess.Authenticated())
	assert.False(t, sess.Resolved())
	assert.Equal(t, 0, src.userCalls)
}

func TestResolve_TokenWithoutUser(t *testing.T) {
	src := &countingSource{token: "t"}

	sess := Resolve(context.Background(), src, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, sess.Authenticated())
	assert.False(t, sess.Resolved())
	assert.Equal(t, 1, src.userCalls)
}
