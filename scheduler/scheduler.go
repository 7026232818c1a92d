// Package scheduler runs the periodic archival and cleanup sweeps and the
// delayed archive of freshly rejected assignments.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	jobTimeout = 10 * time.Minute
	// lockTTL outlives jobTimeout so a slow run keeps its lock to the end.
	lockTTL = jobTimeout + time.Minute
)

// unlockScript deletes the lock only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Sweeper is the part of the assignment service the scheduler drives.
type Sweeper interface {
	ArchiveRejected(ctx context.Context) (int64, error)
	ArchiveOne(ctx context.Context, id uuid.UUID) (bool, error)
	PurgeUnsubmitted(ctx context.Context) (int64, error)
}

type Options struct {
	Location    *time.Location
	ArchiveSpec string
	CleanupSpec string
	// RejectArchiveDelay enables ArchiveLater when positive.
	RejectArchiveDelay time.Duration
	// Redis, when set, makes sure only one replica runs each sweep.
	Redis *redis.Client
}

type Scheduler struct {
	sweeper Sweeper
	cron    *cron.Cron
	opts    Options

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func New(sweeper Sweeper, opts Options) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Scheduler{
		sweeper: sweeper,
		cron:    cron.New(cron.WithLocation(opts.Location)),
		opts:    opts,
		timers:  make(map[uuid.UUID]*time.Timer),
	}
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) (int64, error)
	}{
		{"archive_rejected", opts.ArchiveSpec, sweeper.ArchiveRejected},
		{"purge_unsubmitted", opts.CleanupSpec, sweeper.PurgeUnsubmitted},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.runJob(j.name, j.run) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("location", s.opts.Location.String()).Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop halts the cron, cancels pending delayed archives and waits for running
// jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) runJob(name string, run func(ctx context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if s.opts.Redis != nil {
		release, ok, err := acquireLock(ctx, s.opts.Redis, "scheduler:lock:"+name)
		if err != nil {
			log.Warn().Err(err).Str("job", name).Msg("scheduler lock unavailable, running anyway")
		} else if !ok {
			log.Info().Str("job", name).Msg("job already running on another replica")
			return
		} else {
			defer release()
		}
	}

	n, err := run(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
		return
	}
	log.Info().Str("job", name).Int64("affected", n).Msg("scheduled job done")
}

// acquireLock takes key for this run under a fresh token. release only drops
// the key while it still carries that token.
func acquireLock(ctx context.Context, rdb *redis.Client, key string) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = rdb.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil || !ok {
		return nil, ok, err
	}
	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, rdb, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("scheduler lock release failed")
		}
	}
	return release, true, nil
}

// RunArchive and RunCleanup run the sweeps on demand, e.g. from the cron
// endpoints.
func (s *Scheduler) RunArchive(ctx context.Context) (int64, error) {
	return s.sweeper.ArchiveRejected(ctx)
}

func (s *Scheduler) RunCleanup(ctx context.Context) (int64, error) {
	return s.sweeper.PurgeUnsubmitted(ctx)
}

// ArchiveLater archives a rejected assignment once the configured delay has
// passed. It is a no-op when no delay is configured; the nightly sweep then
// handles the assignment.
func (s *Scheduler) ArchiveLater(id uuid.UUID) {
	if s.opts.RejectArchiveDelay <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[id]; ok {
		return
	}
	s.timers[id] = time.AfterFunc(s.opts.RejectArchiveDelay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		ok, err := s.sweeper.ArchiveOne(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("assignment_id", id.String()).Msg("delayed archive failed")
			return
		}
		log.Info().Str("assignment_id", id.String()).Bool("archived", ok).Msg("delayed archive done")
	})
}
