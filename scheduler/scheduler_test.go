package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

type fakeSweeper struct {
	mu       sync.Mutex
	archived []uuid.UUID
	runs     map[string]int
	done     chan struct{}
}

func newFakeSweeper() *fakeSweeper {
	return &fakeSweeper{runs: map[string]int{}, done: make(chan struct{}, 4)}
}

func (f *fakeSweeper) ArchiveRejected(ctx context.Context) (int64, error) {
	f.mu.Lock()
	f.runs["archive"]++
	f.mu.Unlock()
	return 2, nil
}

func (f *fakeSweeper) PurgeUnsubmitted(ctx context.Context) (int64, error) {
	f.mu.Lock()
	f.runs["purge"]++
	f.mu.Unlock()
	return 0, errors.New("boom")
}

func (f *fakeSweeper) ArchiveOne(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	f.archived = append(f.archived, id)
	f.mu.Unlock()
	f.done <- struct{}{}
	return true, nil
}

func TestNew_SchedulesJobsInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	s, err := New(newFakeSweeper(), Options{Location: loc, ArchiveSpec: "5 0 * * *", CleanupSpec: "0 5 * * *"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries := s.cron.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(entries))
	}

	// 23:00 local: archive fires at 00:05 local the next day
	from := time.Date(2024, 1, 1, 23, 0, 0, 0, loc)
	next := entries[0].Schedule.Next(from)
	want := time.Date(2024, 1, 2, 0, 5, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("archive next run = %v, want %v", next, want)
	}
}

func TestNew_RejectsBadSpec(t *testing.T) {
	if _, err := New(newFakeSweeper(), Options{ArchiveSpec: "not a cron"}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestRunJob(t *testing.T) {
	f := newFakeSweeper()
	s, err := New(f, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.runJob("archive_rejected", f.ArchiveRejected)
	s.runJob("purge_unsubmitted", f.PurgeUnsubmitted)
	if f.runs["archive"] != 1 || f.runs["purge"] != 1 {
		t.Fatalf("unexpected runs %v", f.runs)
	}
}

func TestArchiveLater(t *testing.T) {
	f := newFakeSweeper()
	s, err := New(f, Options{RejectArchiveDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := uuid.New()
	s.ArchiveLater(id)
	s.ArchiveLater(id)

	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed archive did not run")
	}
	time.Sleep(30 * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.archived) != 1 || f.archived[0] != id {
		t.Fatalf("expected one archive of %s, got %v", id, f.archived)
	}
}

func TestArchiveLater_DisabledWithoutDelay(t *testing.T) {
	f := newFakeSweeper()
	s, _ := New(f, Options{})
	s.ArchiveLater(uuid.New())
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) != 0 {
		t.Fatal("expected no timer without a delay")
	}
}

// memoryRedis answers the few commands the job lock sends without a server.
type memoryRedis struct {
	mu   sync.Mutex
	keys map[string]string
	ttls map[string]time.Duration
}

func newMemoryRedis() (*memoryRedis, *redis.Client) {
	m := &memoryRedis{keys: map[string]string{}, ttls: map[string]time.Duration{}}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(m)
	return m, rdb
}

func (m *memoryRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("memoryRedis does not dial")
	}
}

func (m *memoryRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (m *memoryRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		args := cmd.Args()
		switch cmd.Name() {
		case "set":
			// set key value ex|px n nx
			key := fmt.Sprint(args[1])
			_, taken := m.keys[key]
			if !taken {
				m.keys[key] = fmt.Sprint(args[2])
				n, _ := args[4].(int64)
				unit := time.Second
				if fmt.Sprint(args[3]) == "px" {
					unit = time.Millisecond
				}
				m.ttls[key] = time.Duration(n) * unit
			}
			cmd.(*redis.BoolCmd).SetVal(!taken)
		case "evalsha", "eval":
			// eval script 1 key token
			key, token := fmt.Sprint(args[3]), fmt.Sprint(args[4])
			var deleted int64
			if v, ok := m.keys[key]; ok && v == token {
				delete(m.keys, key)
				deleted = 1
			}
			cmd.(*redis.Cmd).SetVal(deleted)
		default:
			return fmt.Errorf("unexpected command %s", cmd.Name())
		}
		return nil
	}
}

func TestJobLockOutlivesJobTimeout(t *testing.T) {
	if lockTTL < jobTimeout {
		t.Fatalf("lockTTL %v shorter than jobTimeout %v", lockTTL, jobTimeout)
	}
	m, rdb := newMemoryRedis()
	release, ok, err := acquireLock(context.Background(), rdb, "scheduler:lock:x")
	if err != nil || !ok {
		t.Fatalf("acquireLock: ok=%v err=%v", ok, err)
	}
	defer release()
	if m.ttls["scheduler:lock:x"] < jobTimeout {
		t.Fatalf("lock stored with ttl %v", m.ttls["scheduler:lock:x"])
	}
}

func TestJobLockReleaseKeepsForeignLock(t *testing.T) {
	m, rdb := newMemoryRedis()
	ctx := context.Background()
	const key = "scheduler:lock:archive_rejected"

	first, ok, err := acquireLock(ctx, rdb, key)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, err := acquireLock(ctx, rdb, key); err != nil || ok {
		t.Fatalf("second acquire while held: ok=%v err=%v", ok, err)
	}

	// the first lock expired and another replica took the key
	m.mu.Lock()
	m.keys[key] = "other-replica"
	m.mu.Unlock()
	first()
	m.mu.Lock()
	got := m.keys[key]
	m.mu.Unlock()
	if got != "other-replica" {
		t.Fatalf("stale release dropped a foreign lock, key now %q", got)
	}

	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
	own, ok, err := acquireLock(ctx, rdb, key)
	if err != nil || !ok {
		t.Fatalf("reacquire: ok=%v err=%v", ok, err)
	}
	own()
	m.mu.Lock()
	_, held := m.keys[key]
	m.mu.Unlock()
	if held {
		t.Fatal("own release left the lock behind")
	}
}

func TestRunJobSkipsWhenLockHeld(t *testing.T) {
	m, rdb := newMemoryRedis()
	m.keys["scheduler:lock:archive_rejected"] = "other-replica"
	f := newFakeSweeper()
	s, err := New(f, Options{Redis: rdb})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.runJob("archive_rejected", f.ArchiveRejected)
	s.runJob("purge_unsubmitted", f.PurgeUnsubmitted)
	if f.runs["archive"] != 0 || f.runs["purge"] != 1 {
		t.Fatalf("unexpected runs %v", f.runs)
	}
	if _, held := m.keys["scheduler:lock:purge_unsubmitted"]; held {
		t.Fatal("purge lock not released")
	}
}
