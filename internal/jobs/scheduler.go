package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"adminpanel/api/internal/tasks"
)

// Scheduler enqueues periodic maintenance tasks onto the worker stream.
type Scheduler struct {
	cron     *cron.Cron
	queue    redis.UniversalClient
	stream   string
	schedule string
	log      zerolog.Logger
	now      func() time.Time
}

// NewScheduler uses a six field cron spec (with seconds), e.g. "0 */5 * * * *".
func NewScheduler(queue redis.UniversalClient, stream, schedule string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		queue:    queue,
		stream:   stream,
		schedule: schedule,
		log:      log,
		now:      time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueSweep); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", s.schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) enqueueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.EnqueueSweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("enqueue session sweep failed")
	}
}

// EnqueueSweep adds one sweep_sessions entry to the stream.
func (s *Scheduler) EnqueueSweep(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: tasks.SweepSessionsTask(s.now()),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", tasks.TypeSweepSessions, err)
	}
	return nil
}
