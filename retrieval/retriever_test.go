package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/testutil/mocks"
)

func testDocs() []Document {
	return []Document{
		{ID: "beach", Text: "Beaches are best visited in summer.", Metadata: map[string]string{"season": "summer"}},
		{ID: "ski", Text: "Ski resorts open in winter.", Metadata: map[string]string{"season": "winter"}},
		{ID: "museum", Text: "Museums are open all year round."},
	}
}

func testEmbedder() *mocks.MockEmbedder {
	return mocks.NewMockEmbedder(3).
		WithVector("Beaches are best visited in summer.", []float64{1, 0, 0}).
		WithVector("Ski resorts open in winter.", []float64{0, 1, 0}).
		WithVector("Museums are open all year round.", []float64{0, 0, 1}).
		WithVector("summer beach trip", []float64{0.9, 0.1, 0}).
		WithVector("winter sports", []float64{0.1, 0.9, 0})
}

func TestRetriever_Query(t *testing.T) {
	r, err := NewRetriever(context.Background(), testDocs(), testEmbedder(), Config{TopK: 2}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, r.Size())

	result := r.Query(context.Background(), "summer beach trip")
	require.Len(t, result.Documents, 2)
	assert.Equal(t, "beach", result.Documents[0].ID)
	assert.Len(t, result.Scores, 2)
	assert.Greater(t, result.Scores[0], result.Scores[1])

	passages := result.Passages()
	require.Len(t, passages, 2)
	assert.Equal(t, "Beaches are best visited in summer.", passages[0])
}

func TestRetriever_QueryTopK(t *testing.T) {
	r, err := NewRetriever(context.Background(), testDocs(), testEmbedder(), Config{TopK: 2}, zap.NewNop())
	require.NoError(t, err)

	result := r.QueryTopK(context.Background(), "winter sports", 1)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "ski", result.Documents[0].ID)
}

func TestRetriever_EmbedFailureReturnsEmpty(t *testing.T) {
	embedder := testEmbedder()
	r, err := NewRetriever(context.Background(), testDocs(), embedder, Config{TopK: 2}, zap.NewNop())
	require.NoError(t, err)

	embedder.WithError(errors.New("embedding service down"))

	result := r.Query(context.Background(), "anything")
	assert.Empty(t, result.Documents)
	assert.Empty(t, result.Scores)
}

func TestRetriever_BuildFailsOnEmbedError(t *testing.T) {
	embedder := mocks.NewMockEmbedder(3).WithError(errors.New("down"))
	_, err := NewRetriever(context.Background(), testDocs(), embedder, Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRetriever_EmptyKnowledge(t *testing.T) {
	r, err := NewRetriever(context.Background(), nil, testEmbedder(), Config{}, zap.NewNop())
	require.NoError(t, err)

	result := r.Query(context.Background(), "anything")
	assert.Empty(t, result.Documents)
}
