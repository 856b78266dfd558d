package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewMemoryStore(HashEmbedding(256))
}

func TestSearchEmptyUserReturnsNothing(t *testing.T) {
	s := newTestStore()

	chunks, err := s.Search(context.Background(), "nobody", []string{"anything"}, 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIndexAndSearchRanksByOverlap(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.IndexDocument(ctx, "user-1", "feedback:1",
		"Peer feedback: delegation remains a growth area, tasks pile up on their desk"))
	require.NoError(t, s.IndexDocument(ctx, "user-1", "journal:1",
		"Weekend notes about hiking plans in the mountains"))

	chunks, err := s.Search(ctx, "user-1", []string{"delegation and workload feedback"}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "feedback:1", chunks[0].SourceID)
	assert.Contains(t, chunks[0].Text, "delegation")
	assert.NotNil(t, chunks[0].Timestamp)
	assert.Greater(t, chunks[0].Score, 0.0)
}

func TestSearchIsolatedPerUser(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.IndexDocument(ctx, "user-1", "doc:1", "delegation feedback for user one"))

	chunks, err := s.Search(ctx, "user-2", []string{"delegation feedback"}, 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSearchMergesQueriesWithoutDuplicates(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.IndexDocument(ctx, "user-1", "doc:1", "delegation feedback from the quarterly review"))

	chunks, err := s.Search(ctx, "user-1",
		[]string{"delegation feedback", "quarterly review delegation"}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestIndexDocumentRejectsEmptyText(t *testing.T) {
	s := newTestStore()
	err := s.IndexDocument(context.Background(), "user-1", "doc:1", "   \n ")
	assert.Error(t, err)
}

func TestSplitChunksKeepsParagraphs(t *testing.T) {
	text := strings.Join([]string{
		strings.Repeat("a", 500),
		strings.Repeat("b", 500),
		strings.Repeat("c", 500),
	}, "\n\n")

	chunks := splitChunks(text, 1200)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "aa")
	assert.Contains(t, chunks[0], "bb")
	assert.Contains(t, chunks[1], "cc")
}

func TestHashEmbeddingDeterministicAndNormalized(t *testing.T) {
	embed := HashEmbedding(64)

	a, err := embed(context.Background(), "delegation feedback")
	require.NoError(t, err)
	b, err := embed(context.Background(), "delegation feedback")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-3)
}
