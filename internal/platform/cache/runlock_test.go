package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLock(t *testing.T) (*RunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRunLock(client), mr
}

func TestAcquireIsExclusive(t *testing.T) {
	lock, _ := testLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "consol:run:1:2025-03", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed: ok=%v err=%v", ok, err)
	}
	ok, err = lock.Acquire(ctx, "consol:run:1:2025-03", time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire should be refused while held")
	}

	ok, err = lock.Acquire(ctx, "consol:run:2:2025-03", time.Minute)
	if err != nil || !ok {
		t.Fatalf("different key should acquire independently: ok=%v err=%v", ok, err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	lock, _ := testLock(t)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "k", time.Minute); !ok {
		t.Fatal("acquire failed")
	}
	if err := lock.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := lock.Acquire(ctx, "k", time.Minute); !ok {
		t.Fatal("reacquire after release should succeed")
	}
}

func TestLockExpires(t *testing.T) {
	lock, mr := testLock(t)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "k", time.Second); !ok {
		t.Fatal("acquire failed")
	}
	mr.FastForward(2 * time.Second)
	if ok, _ := lock.Acquire(ctx, "k", time.Second); !ok {
		t.Fatal("acquire after TTL expiry should succeed")
	}
}
