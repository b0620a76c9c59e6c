package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Schedule holds the intervals of the periodic jobs. Zero disables a job.
type Schedule struct {
	MentionPoll         time.Duration
	LeaderboardSnapshot time.Duration
}

// Manager runs the queue workers plus one ticker per scheduled job type.
type Manager struct {
	queue    *Queue
	schedule Schedule

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(queue *Queue, schedule Schedule) *Manager {
	return &Manager{queue: queue, schedule: schedule}
}

func (m *Manager) Queue() *Queue { return m.queue }

func (m *Manager) Enqueue(ctx context.Context, jobType JobType, payload any) (*Job, error) {
	return m.queue.Enqueue(ctx, jobType, payload)
}

// Start can be called again after Stop.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.queue.Start()
	m.every(ctx, JobTypeMentionPoll, m.schedule.MentionPoll)
	m.every(ctx, JobTypeLeaderboardSnapshot, m.schedule.LeaderboardSnapshot)
	log.Info("[JobQueue] Manager started")
}

func (m *Manager) every(ctx context.Context, jobType JobType, interval time.Duration) {
	if interval <= 0 {
		log.Infof("[JobQueue] Periodic %s disabled", jobType)
		return
	}
	log.Infof("[JobQueue] Scheduling %s every %s", jobType, interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.queue.Enqueue(ctx, jobType, nil); err != nil {
					log.Errorf("[JobQueue] Could not enqueue %s: %v", jobType, err)
				}
			}
		}
	}()
}

// Stop halts the tickers first so nothing is enqueued into a stopping queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.wg.Wait()
	m.queue.Stop()
	log.Info("[JobQueue] Manager stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}
