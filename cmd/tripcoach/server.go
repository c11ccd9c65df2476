package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/api/handlers"
	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/coach"
	"github.com/BaSui01/tripcoach/config"
	icache "github.com/BaSui01/tripcoach/internal/cache"
	"github.com/BaSui01/tripcoach/internal/metrics"
	"github.com/BaSui01/tripcoach/internal/pool"
	"github.com/BaSui01/tripcoach/internal/server"
	"github.com/BaSui01/tripcoach/llm"
	"github.com/BaSui01/tripcoach/llm/embedding"
	"github.com/BaSui01/tripcoach/llm/providers/local"
	"github.com/BaSui01/tripcoach/llm/providers/openai"
	"github.com/BaSui01/tripcoach/prefetch"
	"github.com/BaSui01/tripcoach/retrieval"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 TripCoach 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler   *handlers.HealthHandler
	chatHandler     *handlers.ChatHandler
	prefetchHandler *handlers.PrefetchHandler

	// 核心组件
	metricsCollector *metrics.Collector
	sharedCache      *icache.Manager
	answers          *cache.AnswerCache
	workerPool       *pool.WorkerPool
	prefetcher       *prefetch.Prefetcher
	service          *coach.Service
	provider         llm.Provider
	embedder         embedding.Provider

	// 知识库热重载
	knowledgeWatcher *config.FileWatcher
	knowledgeVersion string

	// 后台协程生命周期
	backgroundCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	backgroundCtx, cancel := context.WithCancel(context.Background())
	s.backgroundCancel = cancel

	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("tripcoach", s.logger)

	// 2. 初始化缓存、检索、LLM 与预取管线
	if err := s.initPipeline(backgroundCtx); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动知识库文件监听
	if err := s.startKnowledgeWatcher(backgroundCtx); err != nil {
		s.logger.Warn("Knowledge watcher not started", zap.Error(err))
	}

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(backgroundCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("llm_provider", s.provider.Name()),
		zap.String("knowledge_version", s.knowledgeVersion),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initPipeline 按依赖顺序组装缓存 → 检索 → LLM → 问答 → 预取。
func (s *Server) initPipeline(ctx context.Context) error {
	// 共享缓存层（可选）
	if s.cfg.Redis.Enabled {
		manager, err := icache.NewManager(icache.Config{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			DefaultTTL:   s.cfg.Cache.DefaultTTL,
			OpTimeout:    s.cfg.Redis.OpTimeout,
			MaxRetries:   s.cfg.Redis.MaxRetries,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
		if err != nil {
			s.logger.Warn("Shared cache unavailable, running local-only", zap.Error(err))
		} else {
			s.sharedCache = manager
		}
	}

	// 知识库与检索索引
	var docs []retrieval.Document
	s.knowledgeVersion = "v1"
	knowledge, err := retrieval.LoadKnowledge(s.cfg.Retrieval.KnowledgePath)
	if err != nil {
		s.logger.Warn("Knowledge file not loaded, retrieval disabled",
			zap.String("path", s.cfg.Retrieval.KnowledgePath),
			zap.Error(err))
	} else {
		docs = knowledge.Documents
		s.knowledgeVersion = knowledge.Version
	}

	// 答案缓存（知识版本参与键生成）
	s.answers = cache.NewAnswerCache(s.sharedCache, cache.Config{
		LocalMaxSize:     s.cfg.Cache.LocalMaxSize,
		DefaultTTL:       s.cfg.Cache.DefaultTTL,
		SingleFlightWait: s.cfg.Cache.SingleFlightWait,
		Version:          s.knowledgeVersion,
	}, s.logger, s.metricsCollector)

	// 嵌入提供者
	s.embedder = s.newEmbedder()

	// 检索器
	var retriever *retrieval.Retriever
	if len(docs) > 0 {
		retriever, err = retrieval.NewRetriever(ctx, docs, s.embedder,
			retrieval.Config{TopK: s.cfg.Retrieval.TopK}, s.logger)
		if err != nil {
			s.logger.Warn("Failed to build retrieval index, retrieval disabled", zap.Error(err))
			retriever = nil
		}
	}

	// LLM Provider
	s.provider = s.newLLMProvider()

	// 预取工作池与生成函数。生成函数闭包引用 service，
	// service 创建晚于 prefetcher，首次预取发生在首个请求之后。
	s.workerPool = pool.NewWorkerPool(pool.Config{
		Workers:   s.cfg.Prefetch.Workers,
		QueueSize: s.cfg.Prefetch.QueueSize,
	})
	generate := func(ctx context.Context, scope string, req cache.Request, lastAnswer string) (string, error) {
		return s.service.Generate(ctx, scope, req, lastAnswer)
	}

	strategy := prefetch.NewRingStrategy(prefetch.RingConfig{
		Seasons:       s.cfg.Prefetch.Seasons,
		Phases:        s.cfg.Prefetch.Phases,
		Audiences:     s.cfg.Prefetch.Audiences,
		MaxCandidates: s.cfg.Prefetch.MaxCandidates,
	})
	s.prefetcher = prefetch.NewPrefetcher(s.answers, s.workerPool, strategy, generate,
		prefetch.Config{
			Scopes: s.cfg.Prefetch.Scopes,
			TTL:    s.cfg.Cache.ArtifactTTL,
		}, s.logger, s.metricsCollector)

	// 问答服务
	s.service = coach.NewService(s.answers, retriever, s.provider, s.prefetcher,
		coach.Config{
			Model:     s.cfg.LLM.Model,
			AnswerTTL: s.cfg.Cache.DefaultTTL,
			MaxTokens: s.cfg.LLM.MaxTokens,
		}, s.logger, s.metricsCollector)

	// 启动预热（非阻塞）
	prewarmer := prefetch.NewPrewarmer(s.answers, s.workerPool, generate,
		prefetch.PrewarmConfig{
			Enabled:      s.cfg.Prewarm.Enabled,
			Combinations: s.prewarmCombinations(),
			Scopes:       s.cfg.Prewarm.Scopes,
			TTL:          s.cfg.Cache.ArtifactTTL,
		}, s.logger, s.metricsCollector)
	prewarmer.Run(ctx)

	return nil
}

// newEmbedder 按配置创建嵌入提供者
func (s *Server) newEmbedder() embedding.Provider {
	cfg := s.cfg.Retrieval.Embedding
	switch cfg.Provider {
	case "openai":
		return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	default:
		return embedding.NewLocalProvider(cfg.Dimensions)
	}
}

// newLLMProvider 按配置创建 LLM 提供者
func (s *Server) newLLMProvider() llm.Provider {
	switch s.cfg.LLM.Provider {
	case "openai":
		return openai.NewProvider(openai.Config{
			APIKey:  s.cfg.LLM.APIKey,
			BaseURL: s.cfg.LLM.BaseURL,
			Model:   s.cfg.LLM.Model,
			Timeout: s.cfg.LLM.Timeout,
		}, s.logger)
	default:
		return local.NewProvider(local.Config{})
	}
}

// prewarmCombinations 把配置的预热组合转成缓存请求
func (s *Server) prewarmCombinations() []cache.Request {
	combos := make([]cache.Request, 0, len(s.cfg.Prewarm.Combinations))
	for _, c := range s.cfg.Prewarm.Combinations {
		combos = append(combos, cache.Request{
			Topic:    c.Topic,
			Season:   c.Season,
			Audience: c.Audience,
			Phase:    c.Phase,
		})
	}
	return combos
}

// artifactScopes 合并预取与预热作用域并去重，
// 状态端点报告系统实际会生成的工件集合
func (s *Server) artifactScopes() []string {
	seen := make(map[string]struct{}, len(s.cfg.Prefetch.Scopes)+len(s.cfg.Prewarm.Scopes))
	var scopes []string
	for _, scope := range s.cfg.Prefetch.Scopes {
		if _, ok := seen[scope]; !ok {
			seen[scope] = struct{}{}
			scopes = append(scopes, scope)
		}
	}
	for _, scope := range s.cfg.Prewarm.Scopes {
		if _, ok := seen[scope]; !ok {
			seen[scope] = struct{}{}
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.chatHandler = handlers.NewChatHandler(s.service, s.logger)
	s.prefetchHandler = handlers.NewPrefetchHandler(s.answers, s.artifactScopes(), s.logger)

	// 就绪检查：共享缓存与 LLM Provider
	if s.sharedCache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("redis", s.sharedCache.Ping))
	}
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("llm", func(ctx context.Context) error {
		status, err := s.provider.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !status.Healthy {
			return fmt.Errorf("provider %s reports unhealthy", s.provider.Name())
		}
		return nil
	}))

	s.logger.Info("Handlers initialized")
}

// startKnowledgeWatcher 监听知识库文件，变更后重建检索索引。
// 知识版本参与缓存键生成且在启动时固定，版本号变化需要重启才会
// 反映到新写入的键上，这里会打日志提醒。
func (s *Server) startKnowledgeWatcher(ctx context.Context) error {
	path := s.cfg.Retrieval.KnowledgePath
	if path == "" {
		return nil
	}

	watcher, err := config.NewFileWatcher([]string{path},
		config.WithWatcherLogger(s.logger))
	if err != nil {
		return err
	}

	watcher.OnChange(func(event config.FileEvent) {
		if event.Op == config.FileOpRemove {
			s.logger.Warn("Knowledge file removed, keeping current index",
				zap.String("path", event.Path))
			return
		}
		s.reloadKnowledge(ctx, event.Path)
	})

	if err := watcher.Start(ctx); err != nil {
		return err
	}

	s.knowledgeWatcher = watcher
	return nil
}

// reloadKnowledge 重新加载知识文件并换入新索引
func (s *Server) reloadKnowledge(ctx context.Context, path string) {
	knowledge, err := retrieval.LoadKnowledge(path)
	if err != nil {
		s.logger.Error("Knowledge reload failed, keeping current index",
			zap.String("path", path), zap.Error(err))
		return
	}

	buildCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	retriever, err := retrieval.NewRetriever(buildCtx, knowledge.Documents, s.embedder,
		retrieval.Config{TopK: s.cfg.Retrieval.TopK}, s.logger)
	if err != nil {
		s.logger.Error("Knowledge index rebuild failed, keeping current index",
			zap.String("path", path), zap.Error(err))
		return
	}

	s.service.SetRetriever(retriever)
	s.logger.Info("Knowledge index reloaded",
		zap.String("path", path),
		zap.Int("documents", retriever.Size()),
		zap.String("version", knowledge.Version))

	if knowledge.Version != s.knowledgeVersion {
		s.logger.Warn("Knowledge version changed, cache keys still use the startup version until restart",
			zap.String("startup_version", s.knowledgeVersion),
			zap.String("file_version", knowledge.Version))
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// API 路由
	mux.HandleFunc("/api/v1/chat", s.chatHandler.HandleChat)
	mux.HandleFunc("/api/v1/chat/stream", s.chatHandler.HandleChatStream)
	mux.HandleFunc("/api/v1/prefetch", s.prefetchHandler.HandleStatus)

	// 构建中间件链
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.AllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(s.metricsCollector),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止知识库监听
	if s.knowledgeWatcher != nil {
		if err := s.knowledgeWatcher.Stop(); err != nil {
			s.logger.Error("Knowledge watcher shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器，停止新流量
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 排空预取队列
	if s.workerPool != nil {
		s.workerPool.Close()
	}

	// 4. 停止后台协程（限流清理、预热）
	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}

	// 5. 关闭共享缓存连接
	if s.sharedCache != nil {
		if err := s.sharedCache.Close(); err != nil {
			s.logger.Error("Shared cache shutdown error", zap.Error(err))
		}
	}

	// 6. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
