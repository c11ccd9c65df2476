package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	icache "github.com/BaSui01/tripcoach/internal/cache"
)

func setupAnswerCache(t *testing.T, cfg Config) (*miniredis.Miniredis, *AnswerCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	shared, err := icache.NewManager(icache.Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
		OpTimeout:  200 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		shared.Close()
		mr.Close()
	})

	return mr, NewAnswerCache(shared, cfg, zap.NewNop(), nil)
}

func TestAnswerCache_SetGet(t *testing.T) {
	_, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "hiking", Query: "best trails"}, "v1")
	ac.Set(ctx, key, "answer", time.Minute)

	v, ok := ac.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "answer", v)
}

func TestAnswerCache_SharedHitBackfillsLocal(t *testing.T) {
	_, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "surfing"}, "v1")
	ac.Set(ctx, key, "answer", time.Minute)

	// 清空本地层，模拟另一进程只写了共享层
	ac.local.Clear()
	require.Equal(t, 0, ac.LocalLen())

	v, ok := ac.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "answer", v)

	// 共享命中后回填本地
	assert.Equal(t, 1, ac.LocalLen())
}

func TestAnswerCache_TTLExpiry(t *testing.T) {
	mr, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "golf"}, "v1")
	ac.Set(ctx, key, "answer", 10*time.Second)

	// TTL 内可取
	_, ok := ac.Get(ctx, key)
	require.True(t, ok)

	// 快进超过 TTL：redis 物理过期 + 本地条目读取时判过期
	mr.FastForward(11 * time.Second)
	ac.local.Clear() // 本地层独立验证见 lru_test

	_, ok = ac.Get(ctx, key)
	assert.False(t, ok)
}

func TestAnswerCache_EntryExpiryAuthoritativeOverEviction(t *testing.T) {
	// 共享层里躺着一个逻辑已过期但物理未淘汰的条目
	_, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "stale"}, "v1")
	entry := &Entry{
		Value:     "stale-answer",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, ac.shared.Set(ctx, key.String(), string(data), time.Minute))

	_, ok := ac.Get(ctx, key)
	assert.False(t, ok, "logically expired entry must read as absent")
}

func TestAnswerCache_SharedOutageDegradesToLocal(t *testing.T) {
	mr, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "camping"}, "v1")
	ac.Set(ctx, key, "answer", time.Minute)

	// 共享层故障
	mr.Close()

	// Get 仍然从本地命中，不报错不阻塞
	start := time.Now()
	v, ok := ac.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "answer", v)

	// Set 降级为仅本地，不报错
	key2 := NewKey(ScopeChat, Request{Topic: "degraded"}, "v1")
	ac.Set(ctx, key2, "v2", time.Minute)
	v, ok = ac.Get(ctx, key2)
	require.True(t, ok)
	assert.Equal(t, "v2", v)

	assert.Less(t, time.Since(start), 3*time.Second, "outage must never block beyond bounded timeouts")
}

func TestAnswerCache_LocalOnlyMode(t *testing.T) {
	ac := NewAnswerCache(nil, DefaultConfig(), zap.NewNop(), nil)
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "local-only"}, "v1")
	ac.Set(ctx, key, "answer", time.Minute)

	v, ok := ac.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "answer", v)
}

func TestAnswerCache_GetOrCompute_SingleFlight(t *testing.T) {
	_, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "hiking", Query: "best trails"}, "v1")

	var calls atomic.Int32
	compute := func(ctx context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond) // 让并发调用者真正并发
		return "computed", nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ac.GetOrCompute(ctx, key, time.Minute, compute)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "compute must run exactly once")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "computed", results[i])
	}

	// 结果已落缓存
	v, ok := ac.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "computed", v)
}

func TestAnswerCache_GetOrCompute_Hit(t *testing.T) {
	_, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "cached"}, "v1")
	ac.Set(ctx, key, "existing", time.Minute)

	v, err := ac.GetOrCompute(ctx, key, time.Minute, func(ctx context.Context) (string, error) {
		t.Fatal("compute must not run on a hit")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "existing", v)
}

func TestAnswerCache_GetOrCompute_Error(t *testing.T) {
	_, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "failing"}, "v1")
	wantErr := errors.New("llm unavailable")

	_, err := ac.GetOrCompute(ctx, key, time.Minute, func(ctx context.Context) (string, error) {
		return "", wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// 失败不落缓存，下次会重新计算
	_, ok := ac.Get(ctx, key)
	assert.False(t, ok)
}

func TestAnswerCache_GetOrCompute_StalledLeader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingleFlightWait = 50 * time.Millisecond
	_, ac := setupAnswerCache(t, cfg)
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "stalled"}, "v1")

	leaderStarted := make(chan struct{})
	release := make(chan struct{})

	// 领跑者卡死
	go func() {
		ac.GetOrCompute(ctx, key, time.Minute, func(ctx context.Context) (string, error) {
			close(leaderStarted)
			<-release
			return "late", nil
		})
	}()
	<-leaderStarted

	// 等待者超时脱离，独立计算
	v, err := ac.GetOrCompute(ctx, key, time.Minute, func(ctx context.Context) (string, error) {
		return "independent", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "independent", v)

	close(release)
}

func TestAnswerCache_GetOrCompute_CallerCancelDoesNotCancelFlight(t *testing.T) {
	_, ac := setupAnswerCache(t, DefaultConfig())

	key := NewKey(ScopeChat, Request{Topic: "cancelled"}, "v1")

	computeStarted := make(chan struct{})
	computeDone := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-computeStarted
		cancel() // 前台断开
	}()

	_, err := ac.GetOrCompute(ctx, key, time.Minute, func(fctx context.Context) (string, error) {
		close(computeStarted)
		// 计算使用与调用方解耦的 context
		select {
		case <-fctx.Done():
			t.Error("in-flight computation must not inherit caller cancellation")
		case <-time.After(100 * time.Millisecond):
		}
		defer close(computeDone)
		return "completed", nil
	})
	// 调用方自己收到取消
	assert.ErrorIs(t, err, context.Canceled)

	// 计算照常完成并落缓存
	select {
	case <-computeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("computation did not complete")
	}
	waitFor(t, func() bool {
		_, ok := ac.Get(context.Background(), key)
		return ok
	})
}

func TestAnswerCache_Contains(t *testing.T) {
	_, ac := setupAnswerCache(t, DefaultConfig())
	ctx := context.Background()

	key := NewKey(ScopeChat, Request{Topic: "present"}, "v1")
	assert.False(t, ac.Contains(ctx, key))

	ac.Set(ctx, key, "v", time.Minute)
	assert.True(t, ac.Contains(ctx, key))

	// 仅共享层存在时也算 present
	ac.local.Clear()
	assert.True(t, ac.Contains(ctx, key))
}

// 辅助：轮询等待异步写入可见
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

