package prefetch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/internal/metrics"
	"github.com/BaSui01/tripcoach/internal/pool"
)

// Generator 为给定作用域和状态生成缓存内容。
// lastAnswer 是触发预取的那轮回答，仅对当前状态非空，
// 供续问、灵感卡等工件作为上下文。
type Generator func(ctx context.Context, scope string, req cache.Request, lastAnswer string) (string, error)

// Config 预取器配置
type Config struct {
	// Scopes 每个候选状态要生成的工件作用域
	Scopes []string `yaml:"scopes" json:"scopes"`

	// TTL 预取条目的缓存时长；零值用答案缓存默认 TTL
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultConfig 返回默认预取配置
func DefaultConfig() Config {
	return Config{
		Scopes: []string{
			cache.ScopeNextQuestions,
			cache.ScopeNextIdeas,
			cache.ScopeMiniSummary,
		},
	}
}

// Prefetcher 在一轮对话完成后，把相邻状态的工件生成任务
// 投递到有界工作池。一切都是尽力而为：池满丢弃、生成失败
// 只记日志，前台请求永远不受影响。
type Prefetcher struct {
	answers  *cache.AnswerCache
	pool     *pool.WorkerPool
	strategy Strategy
	generate Generator
	config   Config
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewPrefetcher 创建预取器
func NewPrefetcher(answers *cache.AnswerCache, workers *pool.WorkerPool, strategy Strategy, generate Generator, config Config, logger *zap.Logger, collector *metrics.Collector) *Prefetcher {
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultConfig().Scopes
	}
	return &Prefetcher{
		answers:  answers,
		pool:     workers,
		strategy: strategy,
		generate: generate,
		config:   config,
		logger:   logger.With(zap.String("component", "prefetcher")),
		metrics:  collector,
	}
}

// OnTurn 在一轮对话完成后触发预取，立即返回。
// req 是该轮的归一化字段，answer 是该轮的回答。
func (p *Prefetcher) OnTurn(req cache.Request, answer string) {
	go p.schedule(req, answer)
}

func (p *Prefetcher) schedule(req cache.Request, answer string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	candidates := p.strategy.Candidates(req)
	if len(candidates) == 0 {
		return
	}
	current := candidates[0]

	scheduled := 0
	for _, candidate := range candidates {
		// 只有当前状态携带本轮回答作为上下文
		lastAnswer := ""
		if candidate == current {
			lastAnswer = answer
		}
		for _, scope := range p.config.Scopes {
			if p.submit(ctx, scope, candidate, lastAnswer) {
				scheduled++
			}
		}
	}

	p.logger.Debug("prefetch scheduled",
		zap.Int("candidates", len(candidates)),
		zap.Int("tasks", scheduled))
}

// submit 为单个 (scope, state) 投递生成任务。
// 已缓存或池满时丢弃，返回是否实际入队。
func (p *Prefetcher) submit(ctx context.Context, scope string, req cache.Request, lastAnswer string) bool {
	key := cache.NewKey(scope, req, p.answers.Version())

	if p.answers.Contains(ctx, key) {
		p.recordDropped(scope, "already_cached")
		return false
	}

	task := func(taskCtx context.Context) error {
		_, err := p.answers.GetOrCompute(taskCtx, key, p.config.TTL, func(computeCtx context.Context) (string, error) {
			return p.generate(computeCtx, scope, req, lastAnswer)
		})
		if err != nil {
			p.recordCompleted(scope, "error")
			p.logger.Warn("prefetch task failed",
				zap.String("scope", scope),
				zap.String("key", key.String()),
				zap.Error(err))
			return err
		}
		p.recordCompleted(scope, "success")
		return nil
	}

	if err := p.pool.Submit(task); err != nil {
		if errors.Is(err, pool.ErrPoolFull) {
			p.recordDropped(scope, "pool_full")
			p.logger.Debug("prefetch dropped, pool saturated", zap.String("scope", scope))
		} else {
			p.recordDropped(scope, "pool_closed")
		}
		return false
	}

	p.recordScheduled(scope)
	return true
}

// Stats 返回底层工作池统计
func (p *Prefetcher) Stats() pool.Stats {
	return p.pool.Stats()
}

func (p *Prefetcher) recordScheduled(scope string) {
	if p.metrics != nil {
		p.metrics.RecordPrefetchScheduled(scope)
	}
}

func (p *Prefetcher) recordDropped(scope, reason string) {
	if p.metrics != nil {
		p.metrics.RecordPrefetchDropped(scope, reason)
	}
}

func (p *Prefetcher) recordCompleted(scope, status string) {
	if p.metrics != nil {
		p.metrics.RecordPrefetchCompleted(scope, status)
	}
}
