package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/givebridge/givebridge/internal/models"
	"github.com/givebridge/givebridge/internal/tasks"
)

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

func seedSessions(t *testing.T, db *gorm.DB, now time.Time) {
	t.Helper()

	user := &models.User{Email: "donor@example.org", PasswordHash: "x", Role: "donor"}
	require.NoError(t, db.Create(user).Error)

	revokedLongAgo := now.Add(-2 * time.Hour)
	revokedJustNow := now.Add(time.Minute)
	sessions := []models.AuthSession{
		{ID: "live", UserID: user.ID, ExpiresAt: now.Add(time.Hour)},
		{ID: "expired", UserID: user.ID, ExpiresAt: now.Add(-time.Hour)},
		{ID: "revoked-old", UserID: user.ID, ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedLongAgo},
		{ID: "revoked-new", UserID: user.ID, ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedJustNow},
	}
	require.NoError(t, db.Create(&sessions).Error)
}

func remainingSessionIDs(t *testing.T, db *gorm.DB) []string {
	t.Helper()

	var ids []string
	require.NoError(t, db.Model(&models.AuthSession{}).Order("id").Pluck("id", &ids).Error)
	return ids
}

func TestPurgeSessions(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()
	seedSessions(t, db, now)

	deleted, err := PurgeSessions(context.Background(), db, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, []string{"live", "revoked-new"}, remainingSessionIDs(t, db))
}

func TestHandlePurgeSessions(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()
	seedSessions(t, db, now)

	task, err := tasks.NewPurgeSessionsTask(now)
	require.NoError(t, err)

	require.NoError(t, HandlePurgeSessions(context.Background(), task, db, zerolog.Nop()))
	assert.Len(t, remainingSessionIDs(t, db), 2)
}

func TestHandlePurgeSessions_BadPayloadSkipsRetry(t *testing.T) {
	db := openTestDB(t)

	err := HandlePurgeSessions(context.Background(), asynq.NewTask(tasks.TypePurgeSessions, []byte("nope")), db, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestEnqueuePurge(t *testing.T) {
	client := &fakeEnqueuer{}
	now := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)

	enqueuePurge(context.Background(), client, now, zerolog.Nop())

	require.Len(t, client.tasks, 1)
	payload, err := tasks.ParsePurgeSessionsPayload(client.tasks[0])
	require.NoError(t, err)
	assert.True(t, payload.Cutoff.Equal(now))
}

func TestEnqueuePurge_DuplicateIsQuiet(t *testing.T) {
	client := &fakeEnqueuer{err: asynq.ErrDuplicateTask}

	enqueuePurge(context.Background(), client, time.Now(), zerolog.Nop())
	assert.Empty(t, client.tasks)
}

func TestStartPurgeScheduler_InvalidSchedule(t *testing.T) {
	err := StartPurgeScheduler(context.Background(), &fakeEnqueuer{}, "not a schedule", zerolog.Nop())
	assert.Error(t, err)
}

func TestStartPurgeScheduler_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- StartPurgeScheduler(ctx, &fakeEnqueuer{}, "0 * * * *", zerolog.Nop())
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
