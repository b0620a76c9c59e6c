package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

const (
	JobTypePersistImage        JobType = "persist_generated_image"
	JobTypeLeaderboardSnapshot JobType = "leaderboard_snapshot"
	JobTypeMentionPoll         JobType = "mention_poll"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDelayed Status = "delayed"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is the stored form of one unit of background work. Payload is the
// JSON encoding of one of the payload structs below.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PersistImage names the generated image to copy into object storage.
type PersistImage struct {
	ImageID uint `json:"image_id"`
}

// MentionPoll optionally overrides the tracked handle for one run.
type MentionPoll struct {
	Handle string `json:"handle,omitempty"`
}

func newJob(id string, jobType JobType, payload any, now time.Time) (*Job, error) {
	job := &Job{
		ID:          id,
		Type:        jobType,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
		}
		job.Payload = raw
	}
	return job, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 || string(j.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

func (j *Job) start(now time.Time) {
	j.Status = StatusRunning
	j.Attempts++
	j.StartedAt = &now
	j.UpdatedAt = now
}

// fail records err and reports whether another attempt is allowed.
func (j *Job) fail(err error, now time.Time) bool {
	j.LastError = err.Error()
	j.UpdatedAt = now
	if j.Attempts < j.MaxAttempts {
		j.Status = StatusDelayed
		return true
	}
	j.Status = StatusFailed
	return false
}

// retryAfter doubles base for every attempt already made.
func (j *Job) retryAfter(base time.Duration) time.Duration {
	if j.Attempts <= 1 {
		return base
	}
	return base << (j.Attempts - 1)
}
