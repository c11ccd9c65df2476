package prefetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/internal/pool"
)

func newTestPrewarmer(t *testing.T, gen *recordingGenerator, config PrewarmConfig) (*Prewarmer, *cache.AnswerCache) {
	t.Helper()
	answers := cache.NewAnswerCache(nil, cache.DefaultConfig(), zap.NewNop(), nil)
	workers := pool.NewWorkerPool(pool.Config{Workers: 2, QueueSize: 64})
	t.Cleanup(workers.Close)
	w := NewPrewarmer(answers, workers, gen.generate, config, zap.NewNop(), nil)
	return w, answers
}

func TestPrewarmer_FillsConfiguredCombinations(t *testing.T) {
	gen := &recordingGenerator{}
	combos := []cache.Request{
		{Topic: "tokyo", Season: "summer", Phase: "planning"},
		{Topic: "kyoto", Season: "autumn", Phase: "dreaming"},
	}
	w, answers := newTestPrewarmer(t, gen, PrewarmConfig{Enabled: true, Combinations: combos})

	done := w.Run(context.Background())
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("prewarm submission did not finish")
	}

	// 2 combinations x 4 scopes (artifacts + stepq)
	waitForCalls(t, gen, 8)

	state := combos[0].Normalize()
	key := cache.NewKey(cache.ScopeStepQuestions, state, answers.Version())
	v, ok := answers.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, "generated:stepq", v)
}

func TestPrewarmer_Disabled(t *testing.T) {
	gen := &recordingGenerator{}
	w, _ := newTestPrewarmer(t, gen, PrewarmConfig{
		Enabled:      false,
		Combinations: []cache.Request{{Topic: "tokyo"}},
	})

	done := w.Run(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled prewarm must close the done channel immediately")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, gen.count())
}

func TestPrewarmer_EmptyCombinations(t *testing.T) {
	gen := &recordingGenerator{}
	w, _ := newTestPrewarmer(t, gen, PrewarmConfig{Enabled: true})

	done := w.Run(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("empty prewarm must close the done channel immediately")
	}
	assert.Equal(t, 0, gen.count())
}

func TestPrewarmer_SkipsCachedKeys(t *testing.T) {
	gen := &recordingGenerator{}
	combo := cache.Request{Topic: "tokyo", Season: "summer"}
	w, answers := newTestPrewarmer(t, gen, PrewarmConfig{
		Enabled:      true,
		Combinations: []cache.Request{combo},
		Scopes:       []string{cache.ScopeStepQuestions},
	})

	state := combo.Normalize()
	key := cache.NewKey(cache.ScopeStepQuestions, state, answers.Version())
	answers.Set(context.Background(), key, "warm already", time.Hour)

	done := w.Run(context.Background())
	<-done

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, gen.count())
}

func TestPrewarmer_CanceledContextAborts(t *testing.T) {
	gen := &recordingGenerator{}
	w, _ := newTestPrewarmer(t, gen, PrewarmConfig{
		Enabled:      true,
		Combinations: []cache.Request{{Topic: "a"}, {Topic: "b"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := w.Run(ctx)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prewarm with canceled context must still finish")
	}
}
