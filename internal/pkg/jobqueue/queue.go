package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/trogdorcult/burninator/internal/pkg/metrics"
)

const (
	keyPrefix   = "trogdor:jobs:"
	keyPending  = keyPrefix + "pending"
	keyRunning  = keyPrefix + "running"
	keyDelayed  = keyPrefix + "delayed"
	keyCounters = keyPrefix + "counters"

	DefaultMaxAttempts = 4
	DefaultWorkers     = 3

	jobTTL      = 24 * time.Hour
	pollTimeout = time.Second
)

var ErrUnknownJobType = errors.New("unknown job type")

// Handler runs one job. An error schedules a delayed retry until the job is
// out of attempts.
type Handler func(ctx context.Context, job *Job) error

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending int64 `json:"pending"`
	Running int64 `json:"running"`
	Delayed int64 `json:"delayed"`
	Done    int64 `json:"done"`
	Failed  int64 `json:"failed"`
}

// Queue is a Redis list queue: LPUSH onto pending, BLMOVE into running,
// delayed retries in a sorted set scored by due time. Without a Redis client
// jobs run in-process as soon as they are enqueued.
type Queue struct {
	rdb     redis.Cmdable
	workers int

	mu       sync.RWMutex
	handlers map[JobType]Handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	backoff    time.Duration
	stuckAfter time.Duration
	tick       time.Duration
	now        func() time.Time
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	q := &Queue{
		workers:    workers,
		handlers:   map[JobType]Handler{},
		backoff:    30 * time.Second,
		stuckAfter: 10 * time.Minute,
		tick:       time.Second,
		now:        time.Now,
	}
	if client != nil {
		q.rdb = client
	}
	return q
}

// Register binds a handler to a job type. Call before Start.
func (q *Queue) Register(jobType JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Start launches the workers and the maintenance loop. It is a no-op in
// inline mode or when already started.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rdb == nil || q.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, i)
	}
	q.wg.Add(1)
	go q.maintain(ctx)
}

// Stop waits for running jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	q.wg.Wait()
	log.Info("[JobQueue] Workers stopped")
}

// Enqueue stores a job and pushes it onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload any) (*Job, error) {
	job, err := newJob(uuid.NewString(), jobType, payload, q.now())
	if err != nil {
		return nil, err
	}

	if q.rdb == nil {
		go q.runInline(job)
		return job, nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, jobTTL)
	pipe.LPush(ctx, keyPending, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	log.Debugf("[JobQueue] Enqueued %s (%s)", job.ID, job.Type)
	return job, nil
}

// Job loads a stored job. Finished successful jobs are deleted.
func (q *Queue) Job(ctx context.Context, id string) (*Job, error) {
	if q.rdb == nil {
		return nil, redis.Nil
	}
	raw, err := q.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("job %s unreadable: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if q.rdb == nil {
		return s, nil
	}
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, keyPending)
	running := pipe.LLen(ctx, keyRunning)
	delayed := pipe.ZCard(ctx, keyDelayed)
	counters := pipe.HGetAll(ctx, keyCounters)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return s, err
	}
	s.Pending, s.Running, s.Delayed = pending.Val(), running.Val(), delayed.Val()
	s.Done, _ = strconv.ParseInt(counters.Val()[string(StatusDone)], 10, 64)
	s.Failed, _ = strconv.ParseInt(counters.Val()[string(StatusFailed)], 10, 64)
	return s, nil
}

func (q *Queue) work(ctx context.Context, worker int) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		id, err := q.rdb.BLMove(ctx, keyPending, keyRunning, "RIGHT", "LEFT", pollTimeout).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case ctx.Err() != nil:
			return
		case err != nil:
			log.Errorf("[JobQueue] Worker %d: %v", worker, err)
			time.Sleep(pollTimeout)
			continue
		}

		// A job that was picked up finishes even when Stop is called.
		runCtx := context.WithoutCancel(ctx)
		job, err := q.Job(runCtx, id)
		if err != nil {
			log.Warnf("[JobQueue] Dropping job %s: %v", id, err)
			q.rdb.LRem(runCtx, keyRunning, 1, id)
			continue
		}
		q.execute(runCtx, job)
	}
}

func (q *Queue) execute(ctx context.Context, job *Job) {
	job.start(q.now())
	q.save(ctx, q.rdb, job)

	err := q.dispatch(ctx, job)
	now := q.now()
	pipe := q.rdb.TxPipeline()
	switch {
	case err == nil:
		pipe.Del(ctx, jobKey(job.ID))
		pipe.HIncrBy(ctx, keyCounters, string(StatusDone), 1)
		metrics.JobsProcessed.WithLabelValues(string(job.Type), string(StatusDone)).Inc()
	case job.fail(err, now) && !errors.Is(err, ErrUnknownJobType):
		due := now.Add(job.retryAfter(q.backoff))
		log.Warnf("[JobQueue] %s (%s) attempt %d/%d failed, retry at %s: %v",
			job.ID, job.Type, job.Attempts, job.MaxAttempts, due.Format(time.RFC3339), err)
		q.save(ctx, pipe, job)
		pipe.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(due.Unix()), Member: job.ID})
	default:
		job.Status = StatusFailed
		log.Errorf("[JobQueue] %s (%s) failed permanently after %d attempts: %v", job.ID, job.Type, job.Attempts, err)
		q.save(ctx, pipe, job)
		pipe.HIncrBy(ctx, keyCounters, string(StatusFailed), 1)
		metrics.JobsProcessed.WithLabelValues(string(job.Type), string(StatusFailed)).Inc()
	}
	pipe.LRem(ctx, keyRunning, 1, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[JobQueue] Could not record result of %s: %v", job.ID, err)
	}
}

func (q *Queue) dispatch(ctx context.Context, job *Job) error {
	q.mu.RLock()
	h, ok := q.handlers[job.Type]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}
	return h(ctx, job)
}

func (q *Queue) runInline(job *Job) {
	ctx := context.Background()
	for {
		job.start(q.now())
		err := q.dispatch(ctx, job)
		if err == nil {
			metrics.JobsProcessed.WithLabelValues(string(job.Type), string(StatusDone)).Inc()
			return
		}
		if !job.fail(err, q.now()) || errors.Is(err, ErrUnknownJobType) {
			log.Errorf("[JobQueue] Inline %s (%s) failed: %v", job.ID, job.Type, err)
			metrics.JobsProcessed.WithLabelValues(string(job.Type), string(StatusFailed)).Inc()
			return
		}
		time.Sleep(job.retryAfter(q.backoff))
	}
}

// maintain promotes due retries and recovers jobs left running by a crashed
// process.
func (q *Queue) maintain(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := q.now()
			q.promoteDue(ctx, now)
			q.recoverStuck(ctx, now)
		}
	}
}

func (q *Queue) promoteDue(ctx context.Context, now time.Time) {
	ids, err := q.rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		log.Errorf("[JobQueue] Reading delayed jobs: %v", err)
		return
	}
	for _, id := range ids {
		// ZREM decides which process owns the promotion.
		if n, err := q.rdb.ZRem(ctx, keyDelayed, id).Result(); err != nil || n == 0 {
			continue
		}
		if job, err := q.Job(ctx, id); err == nil {
			job.Status = StatusPending
			job.UpdatedAt = now
			q.save(ctx, q.rdb, job)
		}
		q.rdb.LPush(ctx, keyPending, id)
	}
}

func (q *Queue) recoverStuck(ctx context.Context, now time.Time) {
	ids, err := q.rdb.LRange(ctx, keyRunning, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Reading running jobs: %v", err)
		return
	}
	for _, id := range ids {
		job, err := q.Job(ctx, id)
		if err != nil || job.Status != StatusRunning {
			q.rdb.LRem(ctx, keyRunning, 1, id)
			continue
		}
		if job.StartedAt == nil || now.Sub(*job.StartedAt) < q.stuckAfter {
			continue
		}
		log.Warnf("[JobQueue] Recovering %s (%s) running since %s", job.ID, job.Type, job.StartedAt.Format(time.RFC3339))
		job.Status = StatusPending
		job.UpdatedAt = now
		pipe := q.rdb.TxPipeline()
		q.save(ctx, pipe, job)
		pipe.LRem(ctx, keyRunning, 1, id)
		pipe.RPush(ctx, keyPending, id)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Errorf("[JobQueue] Recovering %s: %v", id, err)
		}
	}
}

func (q *Queue) save(ctx context.Context, w redis.Cmdable, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Encoding %s: %v", job.ID, err)
		return
	}
	if err := w.Set(ctx, jobKey(job.ID), data, jobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Saving %s: %v", job.ID, err)
	}
}

func jobKey(id string) string { return keyPrefix + "job:" + id }
