package local

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/tripcoach/llm"
	"github.com/BaSui01/tripcoach/testutil"
)

func chatReq(question string, passages ...string) *llm.ChatRequest {
	return &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a travel coach."},
			{Role: llm.RoleUser, Content: question},
		},
		Context: passages,
	}
}

func TestProvider_Completion(t *testing.T) {
	p := NewProvider(Config{})

	resp, err := p.Completion(context.Background(), chatReq("what to do in tokyo?"))
	require.NoError(t, err)

	assert.Contains(t, resp.Content, "what to do in tokyo?")
	assert.Equal(t, "local", resp.Provider)
	assert.True(t, strings.HasPrefix(resp.ID, "local-"))
	assert.Positive(t, resp.Usage.CompletionTokens)
}

func TestProvider_Completion_Deterministic(t *testing.T) {
	p := NewProvider(Config{})

	r1, err := p.Completion(context.Background(), chatReq("q"))
	require.NoError(t, err)
	r2, err := p.Completion(context.Background(), chatReq("q"))
	require.NoError(t, err)

	assert.Equal(t, r1.Content, r2.Content)
}

func TestProvider_Completion_UsesContext(t *testing.T) {
	p := NewProvider(Config{})

	resp, err := p.Completion(context.Background(), chatReq("tokyo?", "Ueno park is lovely in spring.", "Tsukiji market opens early."))
	require.NoError(t, err)

	assert.Contains(t, resp.Content, "2 reference notes")
	assert.Contains(t, resp.Content, "Ueno park")
}

func TestProvider_Stream(t *testing.T) {
	p := NewProvider(Config{})

	ch, err := p.Stream(testutil.TestContext(t), chatReq("short trip?"))
	require.NoError(t, err)

	chunks := testutil.CollectStreamChunks(ch)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	require.True(t, last.Done)
	require.Nil(t, last.Err)

	var b strings.Builder
	for _, chunk := range chunks {
		b.WriteString(chunk.Delta)
	}

	full, err := p.Completion(context.Background(), chatReq("short trip?"))
	require.NoError(t, err)
	assert.Equal(t, full.Content, b.String(), "stream must assemble to the completion answer")
}

func TestProvider_Stream_CanceledContext(t *testing.T) {
	p := NewProvider(Config{Latency: 10 * time.Millisecond})

	_, err := p.Stream(testutil.CancelledContext(), chatReq("q"))
	require.Error(t, err)

	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, "local", llmErr.Provider)
}

func TestProvider_HealthCheck(t *testing.T) {
	p := NewProvider(Config{})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}
