// =============================================================================
// 📦 TripCoach 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Cache:     DefaultCacheConfig(),
		Retrieval: DefaultRetrievalConfig(),
		LLM:       DefaultLLMConfig(),
		Prefetch:  DefaultPrefetchConfig(),
		Prewarm:   DefaultPrewarmConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		AllowedOrigins:  []string{"*"},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		OpTimeout:    200 * time.Millisecond,
		MaxRetries:   1,
	}
}

// DefaultCacheConfig 返回默认答案缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		LocalMaxSize:     1000,
		DefaultTTL:       24 * time.Hour,
		ArtifactTTL:      24 * time.Hour,
		SingleFlightWait: 15 * time.Second,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		KnowledgePath: "knowledge.yaml",
		TopK:          4,
		Embedding: EmbeddingConfig{
			Provider:   "local",
			Model:      "text-embedding-3-small",
			Dimensions: 256,
			Timeout:    30 * time.Second,
		},
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:  "local",
		APIKey:    "",
		BaseURL:   "",
		Model:     "gpt-4o-mini",
		Timeout:   2 * time.Minute,
		MaxTokens: 1024,
	}
}

// DefaultPrefetchConfig 返回默认预取配置
func DefaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{
		Workers:       4,
		QueueSize:     64,
		Scopes:        []string{"next_q", "next_idea", "mini_summary"},
		MaxCandidates: 6,
		Seasons:       []string{"spring", "summer", "autumn", "winter"},
		Phases:        []string{"dreaming", "planning", "booking", "traveling"},
		Audiences:     []string{"solo", "couple", "family", "friends"},
	}
}

// DefaultPrewarmConfig 返回默认预热配置
func DefaultPrewarmConfig() PrewarmConfig {
	return PrewarmConfig{
		Enabled: false,
		Scopes:  []string{"next_q", "next_idea", "mini_summary", "stepq"},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
