package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dpfarias/leadline-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
	err      error
	releases int
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) { return f.acquired, f.err }
func (f *fakeLock) Release(ctx context.Context) error {
	f.releases++
	return nil
}

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string                  { return j.name }
func (j *countingJob) Run(ctx context.Context) error { j.runs++; return j.err }

func newCronService(t *testing.T, registry *Registry, lock Lock) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunCycleExecutesJobsInOrder(t *testing.T) {
	first := &countingJob{name: "first"}
	second := &countingJob{name: "second", err: errors.New("boom")}
	third := &countingJob{name: "third"}
	lock := &fakeLock{acquired: true}
	svc := newCronService(t, NewRegistry(first, second, third), lock)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if first.runs != 1 || second.runs != 1 || third.runs != 1 {
		t.Fatalf("runs = %d/%d/%d, want every job to run despite one failing", first.runs, second.runs, third.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("releases = %d, want 1", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &countingJob{name: "only"}
	lock := &fakeLock{acquired: false}
	svc := newCronService(t, NewRegistry(job), lock)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("runs = %d, want 0 when another instance owns the lock", job.runs)
	}
	if lock.releases != 0 {
		t.Fatal("a lock we never acquired must not be released")
	}
}

func TestRunCyclePropagatesAcquireError(t *testing.T) {
	lock := &fakeLock{err: errors.New("redis down")}
	svc := newCronService(t, NewRegistry(), lock)

	if err := svc.runCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegistryIgnoresNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &countingJob{name: "a"})
	registry.Register(nil)
	registry.Register(&countingJob{name: "b"})

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Name() != "a" || jobs[1].Name() != "b" {
		t.Fatal("jobs out of registration order")
	}
}

type fakeRedisStore struct {
	values map[string]string
	setErr error
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (f *fakeRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedisStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "ll:test:lock", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("Acquire: ok=%v err=%v", ok, err)
	}

	other, _ := NewRedisLock(store, "ll:test:lock", time.Minute)
	ok, err = other.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if ok {
		t.Fatal("second instance must not acquire a held lock")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, err = other.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("Acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseOnlyWhenOwned(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "ll:test:lock", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	if _, err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Simulate TTL expiry followed by another instance grabbing the lock.
	store.values["ll:test:lock"] = "someone-else"
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.values["ll:test:lock"] != "someone-else" {
		t.Fatal("release must not delete a lock owned by another instance")
	}
}
