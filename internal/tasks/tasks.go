package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TypePurgeSessions = "session:purge"
)

// PurgeSessionsPayload carries the cutoff for a session purge.
// Sessions that expired or were revoked before Cutoff are deleted.
type PurgeSessionsPayload struct {
	Cutoff time.Time `json:"cutoff"`
}

// NewPurgeSessionsTask creates a task that deletes dead login sessions
func NewPurgeSessionsTask(cutoff time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(PurgeSessionsPayload{
		Cutoff: cutoff.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypePurgeSessions, payload), nil
}

// ParsePurgeSessionsPayload parses a purge task payload
func ParsePurgeSessionsPayload(task *asynq.Task) (PurgeSessionsPayload, error) {
	var payload PurgeSessionsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.Cutoff.IsZero() {
		return payload, fmt.Errorf("purge payload has no cutoff")
	}
	return payload, nil
}
