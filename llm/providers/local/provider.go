// Package local provides an offline llm.Provider that answers from
// templates without calling any external API. It exists so the service
// can run end to end (cache, prefetch, streaming) in development and CI
// deployments that have no LLM credentials.
package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/tripcoach/llm"
)

// Config configures the local provider.
type Config struct {
	// Latency simulates upstream latency per request. Zero means none.
	Latency time.Duration `json:"latency,omitempty" yaml:"latency,omitempty"`
}

// Provider implements llm.Provider with deterministic templated answers.
type Provider struct {
	cfg Config
}

// NewProvider creates a new local provider instance.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return "local" }

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: 0}, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := p.wait(ctx); err != nil {
		return nil, &llm.Error{
			Code:     llm.ErrInternalError,
			Message:  err.Error(),
			Provider: p.Name(),
		}
	}

	content := p.answer(req)
	return &llm.ChatResponse{
		ID:        "local-" + uuid.NewString(),
		Provider:  p.Name(),
		Model:     "local",
		Content:   content,
		Usage:     llm.ChatUsage{PromptTokens: promptTokens(req), CompletionTokens: len(strings.Fields(content))},
		CreatedAt: time.Now(),
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := p.wait(ctx); err != nil {
		return nil, &llm.Error{
			Code:     llm.ErrInternalError,
			Message:  err.Error(),
			Provider: p.Name(),
		}
	}

	id := "local-" + uuid.NewString()
	words := strings.Fields(p.answer(req))
	ch := make(chan llm.StreamChunk, len(words)+1)

	go func() {
		defer close(ch)
		for i, w := range words {
			delta := w
			if i < len(words)-1 {
				delta += " "
			}
			select {
			case <-ctx.Done():
				ch <- llm.StreamChunk{
					ID:   id,
					Done: true,
					Err: &llm.Error{
						Code:     llm.ErrInternalError,
						Message:  ctx.Err().Error(),
						Provider: p.Name(),
					},
				}
				return
			case ch <- llm.StreamChunk{ID: id, Delta: delta}:
			}
		}
		ch <- llm.StreamChunk{ID: id, Done: true}
	}()

	return ch, nil
}

// answer 从最后一条用户消息生成模板化回答，附带检索片段数量，
// 保证同一请求的回答稳定可缓存。
func (p *Provider) answer(req *llm.ChatRequest) string {
	question := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			question = req.Messages[i].Content
			break
		}
	}
	if question == "" {
		question = "your trip"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here is a quick take on %q.", firstLine(question))
	if n := len(req.Context); n > 0 {
		fmt.Fprintf(&b, " Drawing on %d reference notes:", n)
		for _, passage := range req.Context {
			fmt.Fprintf(&b, " %s", firstLine(passage))
		}
	} else {
		b.WriteString(" Consider the season, your travel companions, and how far along your planning is.")
	}
	return b.String()
}

func (p *Provider) wait(ctx context.Context) error {
	if p.cfg.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.cfg.Latency):
		return nil
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func promptTokens(req *llm.ChatRequest) int {
	n := 0
	for _, m := range req.Messages {
		n += len(strings.Fields(m.Content))
	}
	return n
}
