package pipeline

import (
	"context"
	"testing"
)

func TestLocalLockerMutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	held, err := locker.TryAcquire(ctx, "curator")
	if err != nil || !held {
		t.Fatalf("expected first acquire to succeed, got held=%v err=%v", held, err)
	}

	held, err = locker.TryAcquire(ctx, "curator")
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if held {
		t.Fatal("expected second acquire to be rejected")
	}

	if err := locker.Release(ctx, "curator"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	held, err = locker.TryAcquire(ctx, "curator")
	if err != nil || !held {
		t.Fatalf("expected acquire after release to succeed, got held=%v err=%v", held, err)
	}
}

func TestLocalLockerKeysAreIndependent(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	if held, _ := locker.TryAcquire(ctx, "curator"); !held {
		t.Fatal("expected curator lock")
	}
	if held, _ := locker.TryAcquire(ctx, "scout"); !held {
		t.Fatal("expected scout lock to be independent")
	}
}

func TestNewRedisLockerRejectsBadURL(t *testing.T) {
	if _, err := NewRedisLocker("not a redis url", 0); err == nil {
		t.Fatal("expected an error for an invalid URL")
	}
}

func TestRedisLockerKeyFormat(t *testing.T) {
	locker := &RedisLocker{keyPrefix: "relay:agents:lock"}
	if got := locker.lockKey("curator"); got != "relay:agents:lock:curator" {
		t.Errorf("unexpected lock key %q", got)
	}
}
