package prefetch

import (
	"github.com/BaSui01/tripcoach/cache"
)

// Strategy 从已完成对话的归一化字段推导预取候选状态。
// 返回的候选包括当前状态本身，顺序确定，数量有界。
type Strategy interface {
	Candidates(req cache.Request) []cache.Request
}

// RingConfig 配置相邻值推导：每个维度一个有序环，
// 候选取当前值在环上的前驱和后继。
type RingConfig struct {
	Seasons       []string `yaml:"seasons" json:"seasons"`
	Phases        []string `yaml:"phases" json:"phases"`
	Audiences     []string `yaml:"audiences" json:"audiences"`
	MaxCandidates int      `yaml:"max_candidates" json:"max_candidates"`
}

// DefaultRingConfig 返回默认的相邻环配置
func DefaultRingConfig() RingConfig {
	return RingConfig{
		Seasons:       []string{"spring", "summer", "autumn", "winter"},
		Phases:        []string{"dreaming", "planning", "booking", "traveling"},
		Audiences:     []string{"solo", "couple", "family", "friends"},
		MaxCandidates: 6,
	}
}

// RingStrategy 是默认策略：当前状态优先，随后每个维度
// 各产生至多两个相邻变体（其余字段不变）。
type RingStrategy struct {
	config RingConfig
}

// NewRingStrategy 创建环形相邻策略
func NewRingStrategy(config RingConfig) *RingStrategy {
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = DefaultRingConfig().MaxCandidates
	}
	return &RingStrategy{config: config}
}

// Candidates 推导候选状态。查询文本不参与候选：
// 预取的工件按状态键缓存。
func (s *RingStrategy) Candidates(req cache.Request) []cache.Request {
	base := req.Normalize()
	base.Query = ""

	candidates := []cache.Request{base}
	seen := map[cache.Request]bool{base: true}

	add := func(c cache.Request) {
		if len(candidates) >= s.config.MaxCandidates {
			return
		}
		if !seen[c] {
			seen[c] = true
			candidates = append(candidates, c)
		}
	}

	for _, season := range ringNeighbors(s.config.Seasons, base.Season) {
		c := base
		c.Season = season
		add(c)
	}
	for _, phase := range ringNeighbors(s.config.Phases, base.Phase) {
		c := base
		c.Phase = phase
		add(c)
	}
	for _, audience := range ringNeighbors(s.config.Audiences, base.Audience) {
		c := base
		c.Audience = audience
		add(c)
	}

	return candidates
}

// ringNeighbors 返回 value 在环上的后继与前驱。
// value 不在环中（或环太小）时没有相邻候选。
func ringNeighbors(ring []string, value string) []string {
	if len(ring) < 2 {
		return nil
	}
	for i, v := range ring {
		if v == value {
			next := ring[(i+1)%len(ring)]
			prev := ring[(i-1+len(ring))%len(ring)]
			if next == prev {
				return []string{next}
			}
			return []string{next, prev}
		}
	}
	return nil
}
