package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/config"
)

func TestServer_ArtifactScopes_Defaults(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewServer(cfg, zap.NewNop())

	// 预取默认三个工件，预热追加 stepq，去重后四个
	assert.Equal(t, []string{"next_q", "next_idea", "mini_summary", "stepq"}, s.artifactScopes())
}

func TestServer_ArtifactScopes_CustomConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Prefetch.Scopes = []string{"next_q"}
	cfg.Prewarm.Scopes = []string{"next_q", "stepq"}
	s := NewServer(cfg, zap.NewNop())

	// 状态端点必须反映配置的作用域而不是内置默认
	assert.Equal(t, []string{"next_q", "stepq"}, s.artifactScopes())
}
