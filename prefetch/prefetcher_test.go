package prefetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/internal/pool"
)

// recordingGenerator 记录每次生成调用，线程安全
type recordingGenerator struct {
	mu    sync.Mutex
	calls []generatedCall
	err   error
}

type generatedCall struct {
	scope      string
	req        cache.Request
	lastAnswer string
}

func (g *recordingGenerator) generate(ctx context.Context, scope string, req cache.Request, lastAnswer string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generatedCall{scope: scope, req: req, lastAnswer: lastAnswer})
	if g.err != nil {
		return "", g.err
	}
	return "generated:" + scope, nil
}

func (g *recordingGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *recordingGenerator) callList() []generatedCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generatedCall(nil), g.calls...)
}

func newTestPrefetcher(t *testing.T, gen *recordingGenerator, strategy Strategy) (*Prefetcher, *cache.AnswerCache) {
	t.Helper()
	answers := cache.NewAnswerCache(nil, cache.DefaultConfig(), zap.NewNop(), nil)
	workers := pool.NewWorkerPool(pool.Config{Workers: 2, QueueSize: 32})
	t.Cleanup(workers.Close)
	p := NewPrefetcher(answers, workers, strategy, gen.generate, DefaultConfig(), zap.NewNop(), nil)
	return p, answers
}

// singleStateStrategy 只返回当前状态，便于精确断言
type singleStateStrategy struct{}

func (singleStateStrategy) Candidates(req cache.Request) []cache.Request {
	base := req.Normalize()
	base.Query = ""
	return []cache.Request{base}
}

// emptyStrategy 模拟不产出任何候选的自定义策略
type emptyStrategy struct{}

func (emptyStrategy) Candidates(cache.Request) []cache.Request { return nil }

func waitForCalls(t *testing.T, gen *recordingGenerator, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if gen.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d generator calls, got %d", n, gen.count())
}

func TestPrefetcher_GeneratesArtifactsForCurrentState(t *testing.T) {
	gen := &recordingGenerator{}
	p, answers := newTestPrefetcher(t, gen, singleStateStrategy{})

	req := cache.Request{Topic: "tokyo", Season: "summer", Phase: "planning", Query: "hotels?"}
	p.OnTurn(req, "stay in shinjuku")

	waitForCalls(t, gen, 3)

	scopes := map[string]bool{}
	for _, call := range gen.callList() {
		scopes[call.scope] = true
		assert.Equal(t, "stay in shinjuku", call.lastAnswer, "current state carries the turn answer")
		assert.Empty(t, call.req.Query, "artifacts are keyed by state, not query")
	}
	assert.True(t, scopes[cache.ScopeNextQuestions])
	assert.True(t, scopes[cache.ScopeNextIdeas])
	assert.True(t, scopes[cache.ScopeMiniSummary])

	// 生成结果已落缓存
	state := req.Normalize()
	state.Query = ""
	key := cache.NewKey(cache.ScopeNextQuestions, state, answers.Version())
	v, ok := answers.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, "generated:next_q", v)
}

func TestPrefetcher_NeighborsWithoutAnswer(t *testing.T) {
	gen := &recordingGenerator{}
	strategy := NewRingStrategy(RingConfig{
		Seasons:       []string{"summer", "winter"},
		MaxCandidates: 4,
	})
	p, _ := newTestPrefetcher(t, gen, strategy)

	p.OnTurn(cache.Request{Topic: "tokyo", Season: "summer"}, "an answer")

	// 2 candidate states x 3 scopes
	waitForCalls(t, gen, 6)

	for _, call := range gen.callList() {
		if call.req.Season == "winter" {
			assert.Empty(t, call.lastAnswer, "neighbor states must not carry the turn answer")
		}
	}
}

func TestPrefetcher_EmptyStrategyIsNoop(t *testing.T) {
	gen := &recordingGenerator{}
	p, _ := newTestPrefetcher(t, gen, emptyStrategy{})

	// schedule 运行在无保护的协程里，空候选必须安静返回
	p.schedule(cache.Request{Topic: "tokyo"}, "answer")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, gen.count())
}

func TestPrefetcher_SkipsCachedKeys(t *testing.T) {
	gen := &recordingGenerator{}
	p, answers := newTestPrefetcher(t, gen, singleStateStrategy{})

	state := cache.Request{Topic: "tokyo", Season: "summer"}.Normalize()
	for _, scope := range DefaultConfig().Scopes {
		key := cache.NewKey(scope, state, answers.Version())
		answers.Set(context.Background(), key, "already there", time.Hour)
	}

	p.OnTurn(cache.Request{Topic: "tokyo", Season: "summer"}, "answer")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, gen.count(), "cached artifacts must not be regenerated")
}

func TestPrefetcher_GeneratorErrorDoesNotCache(t *testing.T) {
	gen := &recordingGenerator{err: errors.New("llm down")}
	p, answers := newTestPrefetcher(t, gen, singleStateStrategy{})

	req := cache.Request{Topic: "tokyo"}
	p.OnTurn(req, "answer")

	waitForCalls(t, gen, 3)
	time.Sleep(50 * time.Millisecond)

	state := req.Normalize()
	key := cache.NewKey(cache.ScopeNextQuestions, state, answers.Version())
	_, ok := answers.Get(context.Background(), key)
	assert.False(t, ok, "failed generation must not populate the cache")
}

func TestPrefetcher_PoolSaturationDropsSilently(t *testing.T) {
	answers := cache.NewAnswerCache(nil, cache.DefaultConfig(), zap.NewNop(), nil)

	// 单工人单槽位，先占满
	workers := pool.NewWorkerPool(pool.Config{Workers: 1, QueueSize: 1})
	t.Cleanup(workers.Close)

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, workers.Submit(func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, workers.Submit(func(ctx context.Context) error { return nil }))

	gen := &recordingGenerator{}
	p := NewPrefetcher(answers, workers, singleStateStrategy{}, gen.generate, DefaultConfig(), zap.NewNop(), nil)

	done := make(chan struct{})
	go func() {
		p.schedule(cache.Request{Topic: "tokyo"}, "answer")
		close(done)
	}()

	// 投递必须在池满时立即丢弃而不是阻塞
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule blocked on a saturated pool")
	}
	close(block)

	assert.Equal(t, 0, gen.count())
}
