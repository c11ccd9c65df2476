package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	icache "github.com/BaSui01/tripcoach/internal/cache"
	"github.com/BaSui01/tripcoach/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// ComputeFunc 在未命中时生成答案（通常是一次 LLM 调用）。
type ComputeFunc func(ctx context.Context) (string, error)

// Config 答案缓存配置
type Config struct {
	// 本地层最大条目数
	LocalMaxSize int `yaml:"local_max_size" json:"local_max_size"`

	// 默认 TTL（两层一致）
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 等待同键在途计算的上限，超过后独立计算
	SingleFlightWait time.Duration `yaml:"single_flight_wait" json:"single_flight_wait"`

	// 知识版本，写入条目并参与键生成
	Version string `yaml:"version" json:"version"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		LocalMaxSize:     1000,
		DefaultTTL:       24 * time.Hour,
		SingleFlightWait: 15 * time.Second,
		Version:          "v1",
	}
}

// AnswerCache 两级答案缓存：进程内 LRU + 共享 Redis 层。
//
// 本地层是共享层的子集视图：本地未命中时查共享层，命中则回填本地。
// 共享层故障降级为仅本地模式，任何缓存操作都不会向调用方返回错误——
// 对调用方而言，故障与未命中不可区分。
type AnswerCache struct {
	local   *LRUCache
	shared  *icache.Manager // nil 表示仅本地模式
	config  Config
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Collector // 可为 nil
}

// NewAnswerCache 创建两级答案缓存。shared 传 nil 进入仅本地模式。
func NewAnswerCache(shared *icache.Manager, config Config, logger *zap.Logger, collector *metrics.Collector) *AnswerCache {
	if config.LocalMaxSize <= 0 {
		config.LocalMaxSize = DefaultConfig().LocalMaxSize
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if config.SingleFlightWait <= 0 {
		config.SingleFlightWait = DefaultConfig().SingleFlightWait
	}

	return &AnswerCache{
		local:   NewLRUCache(config.LocalMaxSize),
		shared:  shared,
		config:  config,
		logger:  logger.With(zap.String("component", "answer_cache")),
		metrics: collector,
	}
}

// Version 返回知识版本
func (c *AnswerCache) Version() string { return c.config.Version }

// DefaultTTL 返回默认 TTL
func (c *AnswerCache) DefaultTTL() time.Duration { return c.config.DefaultTTL }

// Get 查询缓存：本地层 → 共享层（命中回填本地）→ 未命中。
// 共享层故障视同未命中。
func (c *AnswerCache) Get(ctx context.Context, key Key) (string, bool) {
	// 1. 查本地层
	if entry, ok := c.local.Get(key); ok {
		c.recordHit("local")
		return entry.Value, true
	}

	// 2. 查共享层
	if c.shared != nil {
		data, err := c.shared.Get(ctx, key.String())
		if err == nil {
			var entry Entry
			if err := json.Unmarshal([]byte(data), &entry); err == nil {
				if entry.Expired(time.Now()) {
					// 条目级过期判断权威于物理淘汰
					c.recordMiss("shared")
					return "", false
				}
				// 回填本地层
				c.local.Set(key, &entry)
				c.recordHit("shared")
				return entry.Value, true
			}
			c.logger.Warn("shared cache entry corrupt", zap.String("key", key.String()))
		} else if !icache.IsCacheMiss(err) {
			c.logger.Debug("shared cache unavailable, degrading to local-only",
				zap.String("key", key.String()), zap.Error(err))
		}
	}

	c.recordMiss("local")
	return "", false
}

// Contains 判断键是否已缓存且未过期，不回填本地层。
// 预取器用它跳过无需重复生成的候选。
func (c *AnswerCache) Contains(ctx context.Context, key Key) bool {
	if entry, ok := c.local.Get(key); ok && entry != nil {
		return true
	}
	if c.shared != nil {
		if n, err := c.shared.Exists(ctx, key.String()); err == nil && n > 0 {
			return true
		}
	}
	return false
}

// Set 写入缓存：先写共享层（持久性优先），再写本地层。
// 共享层写入失败只记日志，本地写入照常进行，调用方请求仍然受益。
func (c *AnswerCache) Set(ctx context.Context, key Key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	now := time.Now()
	entry := &Entry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Version:   c.config.Version,
	}

	// 1. 写共享层
	if c.shared != nil {
		data, err := json.Marshal(entry)
		if err == nil {
			if err := c.shared.Set(ctx, key.String(), string(data), ttl); err != nil {
				c.logger.Warn("shared cache set failed, local write proceeds",
					zap.String("key", key.String()), zap.Error(err))
			}
		}
	}

	// 2. 写本地层
	c.local.Set(key, entry)
}

// GetOrCompute 单飞入口。
//
// 命中直接返回。未命中时同键并发调用者合并为一次 compute：
// 领跑者执行并通过 Set 写回，其余等待同一结果；等待超过
// SingleFlightWait（领跑者疑似卡死）后脱离，独立计算以避免无界排队。
//
// 在途计算使用与调用方取消解耦的 context：前台请求断开不会中断
// 其他等待者（或后台任务）依赖的那次计算，算完照常落缓存。
func (c *AnswerCache) GetOrCompute(ctx context.Context, key Key, ttl time.Duration, compute ComputeFunc) (string, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		// 与领跑请求的生命周期解耦
		fctx := context.WithoutCancel(ctx)
		v, err := compute(fctx)
		if err != nil {
			return nil, err
		}
		c.Set(fctx, key, v, ttl)
		return v, nil
	})

	wait := c.config.SingleFlightWait
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil

	case <-timer.C:
		// 领跑者超时未归：脱离单飞，独立计算
		c.logger.Warn("single-flight leader stalled, computing independently",
			zap.String("key", key.String()), zap.Duration("waited", wait))
		v, err := compute(ctx)
		if err != nil {
			return "", err
		}
		c.Set(ctx, key, v, ttl)
		return v, nil

	case <-ctx.Done():
		// 调用方放弃等待；在途计算继续并最终落缓存
		return "", ctx.Err()
	}
}

// LocalLen 返回本地层条目数（测试与状态上报用）
func (c *AnswerCache) LocalLen() int { return c.local.Len() }

func (c *AnswerCache) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(tier)
	}
}

func (c *AnswerCache) recordMiss(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(tier)
	}
}
