package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locationcore/pkg/domain"
)

func TestLocalSerializesHolders(t *testing.T) {
	locker := NewLocal()
	ctx := context.Background()
	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := locker.Obtain(ctx, Key("MDI"))
			if err != nil {
				t.Errorf("obtain: %v", err)
				return
			}
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			_ = lease.Release(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestLocalTimesOutAsConflict(t *testing.T) {
	locker := NewLocal()
	held, err := locker.Obtain(context.Background(), Key("MDI"))
	require.NoError(t, err)

	other, err := locker.Obtain(context.Background(), Key("LEI"))
	require.NoError(t, err)
	require.NoError(t, other.Release(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Obtain(ctx, Key("MDI"))
	require.Error(t, err)
	assert.True(t, domain.HasReason(err, domain.ReasonConcurrentModification))
	assert.True(t, domain.HasCode(err, domain.CodeConflict))

	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, held.Release(context.Background()))
	again, err := locker.Obtain(context.Background(), Key("MDI"))
	require.NoError(t, err)
	require.NoError(t, again.Release(context.Background()))
}

func TestDialRedisRejectsBadURL(t *testing.T) {
	_, _, err := DialRedis(context.Background(), RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}
