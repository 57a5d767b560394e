package dedupe

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursegate/internal/logger"
)

func TestMemoryFirstSeen(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	first, err := m.FirstSeen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	again, _ := m.FirstSeen(ctx, "evt_1")
	assert.False(t, again)

	require.NoError(t, m.Forget(ctx, "evt_1"))
	afterForget, _ := m.FirstSeen(ctx, "evt_1")
	assert.True(t, afterForget)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	first, _ := m.FirstSeen(ctx, "evt_1")
	assert.True(t, first)

	now = now.Add(2 * time.Minute)
	expired, _ := m.FirstSeen(ctx, "evt_1")
	assert.True(t, expired)
}

func TestMemoryConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.FirstSeen(ctx, "evt_race"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisDeduper(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if testing.Short() || addr == "" {
		t.Skip("set REDIS_ADDR to run the Redis deduper test")
	}

	r, err := NewRedis(addr, os.Getenv("REDIS_PASSWORD"), time.Minute, logger.NewNop())
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	key := "test-" + uuid.NewString()

	first, err := r.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := r.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, r.Forget(ctx, key))
}
