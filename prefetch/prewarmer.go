package prefetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/internal/metrics"
	"github.com/BaSui01/tripcoach/internal/pool"
)

// PrewarmConfig 预热配置
type PrewarmConfig struct {
	// Enabled 是否在启动时预热
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Combinations 要预热的状态组合
	Combinations []cache.Request `yaml:"combinations" json:"combinations"`

	// Scopes 每个组合要生成的作用域；空值用工件作用域加 stepq
	Scopes []string `yaml:"scopes" json:"scopes"`

	// TTL 预热条目的缓存时长；零值用答案缓存默认 TTL
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultPrewarmConfig 返回默认预热配置
func DefaultPrewarmConfig() PrewarmConfig {
	return PrewarmConfig{
		Enabled: true,
		Scopes: []string{
			cache.ScopeNextQuestions,
			cache.ScopeNextIdeas,
			cache.ScopeMiniSummary,
			cache.ScopeStepQuestions,
		},
	}
}

// Prewarmer 在启动时把配置的状态组合灌进缓存。
// Run 立即返回，服务不等预热完成即可接流量；
// 任何失败只记日志，绝不阻止启动。
type Prewarmer struct {
	answers  *cache.AnswerCache
	pool     *pool.WorkerPool
	generate Generator
	config   PrewarmConfig
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewPrewarmer 创建预热器
func NewPrewarmer(answers *cache.AnswerCache, workers *pool.WorkerPool, generate Generator, config PrewarmConfig, logger *zap.Logger, collector *metrics.Collector) *Prewarmer {
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultPrewarmConfig().Scopes
	}
	return &Prewarmer{
		answers:  answers,
		pool:     workers,
		generate: generate,
		config:   config,
		logger:   logger.With(zap.String("component", "prewarmer")),
		metrics:  collector,
	}
}

// Run 启动预热，立即返回。返回的通道在全部组合投递完毕后关闭，
// 测试用它等待投递结束。
func (w *Prewarmer) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	if !w.config.Enabled || len(w.config.Combinations) == 0 {
		w.logger.Info("prewarm disabled or empty, skipping")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		start := time.Now()

		submitted, dropped := 0, 0
		for _, combo := range w.config.Combinations {
			select {
			case <-ctx.Done():
				w.logger.Warn("prewarm aborted", zap.Error(ctx.Err()))
				return
			default:
			}

			req := combo.Normalize()
			req.Query = ""
			for _, scope := range w.config.Scopes {
				if w.submit(ctx, scope, req) {
					submitted++
				} else {
					dropped++
				}
			}
		}

		elapsed := time.Since(start)
		if w.metrics != nil {
			w.metrics.RecordPrewarmDuration(elapsed)
		}
		w.logger.Info("prewarm submitted",
			zap.Int("combinations", len(w.config.Combinations)),
			zap.Int("tasks", submitted),
			zap.Int("dropped", dropped),
			zap.Duration("elapsed", elapsed))
	}()

	return done
}

func (w *Prewarmer) submit(ctx context.Context, scope string, req cache.Request) bool {
	key := cache.NewKey(scope, req, w.answers.Version())

	if w.answers.Contains(ctx, key) {
		return false
	}

	task := func(taskCtx context.Context) error {
		_, err := w.answers.GetOrCompute(taskCtx, key, w.config.TTL, func(computeCtx context.Context) (string, error) {
			return w.generate(computeCtx, scope, req, "")
		})
		if err != nil {
			w.logger.Warn("prewarm task failed",
				zap.String("scope", scope),
				zap.String("key", key.String()),
				zap.Error(err))
		}
		return err
	}

	if err := w.pool.Submit(task); err != nil {
		w.logger.Debug("prewarm task dropped", zap.String("scope", scope), zap.Error(err))
		return false
	}
	return true
}
