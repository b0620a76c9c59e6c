package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	ids []uint
	err error
}

func (r *recordingPersister) Persist(_ context.Context, id uint) error {
	r.ids = append(r.ids, id)
	return r.err
}

func TestRegisterHandlersOnlyConfigured(t *testing.T) {
	q := NewQueue(nil, 1)
	RegisterHandlers(q, Handlers{Persister: &recordingPersister{}})

	assert.Contains(t, q.handlers, JobTypePersistImage)
	assert.NotContains(t, q.handlers, JobTypeLeaderboardSnapshot)
	assert.NotContains(t, q.handlers, JobTypeMentionPoll)
}

func TestPersistHandlerDecodesPayload(t *testing.T) {
	q := NewQueue(nil, 1)
	p := &recordingPersister{}
	RegisterHandlers(q, Handlers{Persister: p})

	job, err := newJob("j1", JobTypePersistImage, PersistImage{ImageID: 5}, time.Now())
	require.NoError(t, err)
	require.NoError(t, q.dispatch(context.Background(), job))
	assert.Equal(t, []uint{5}, p.ids)

	err = q.dispatch(context.Background(), &Job{Type: JobTypePersistImage})
	assert.Error(t, err, "missing image id")

	p.err = errors.New("s3 down")
	assert.Error(t, q.dispatch(context.Background(), job))
}

func TestDecodeEmptyPayload(t *testing.T) {
	job, err := newJob("j2", JobTypeMentionPoll, nil, time.Now())
	require.NoError(t, err)
	var poll MentionPoll
	require.NoError(t, job.Decode(&poll))
	assert.Empty(t, poll.Handle)

	job.Payload = []byte("{not json")
	assert.Error(t, job.Decode(&poll))
}
