package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/mentatlabs/mentat/internal/domain"
	"github.com/mentatlabs/mentat/internal/observability"
)

const (
	// chunkTarget is the preferred chunk size in characters. Chunks break on
	// paragraph boundaries, so actual sizes vary around this.
	chunkTarget = 1200

	metaSource    = "source"
	metaUser      = "user_id"
	metaIndexedAt = "indexed_at"
)

// Store is a chromem-go backed document store. Each user gets their own
// collection so retrieval never crosses user boundaries.
//
// Implements domain.Retriever and domain.DocumentIndexer.
type Store struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
	now   func() time.Time
}

// NewPersistentStore opens (or creates) an on-disk store at path.
func NewPersistentStore(path string, embed chromem.EmbeddingFunc) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating vector store directory %s: %w", path, err)
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store at %s: %w", path, err)
	}
	return &Store{db: db, embed: embed, now: time.Now}, nil
}

// NewMemoryStore creates an in-memory store, used in local mode and tests.
func NewMemoryStore(embed chromem.EmbeddingFunc) *Store {
	return &Store{db: chromem.NewDB(), embed: embed, now: time.Now}
}

func collectionName(userID domain.UserID) string {
	return "user-" + string(userID)
}

// IndexDocument chunks text on paragraph boundaries and stores the chunks
// under the user's collection. Re-indexing the same sourceID overwrites the
// previous chunks with matching IDs.
func (s *Store) IndexDocument(ctx context.Context, userID domain.UserID, sourceID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("indexing %s: empty document", sourceID)
	}

	coll, err := s.db.GetOrCreateCollection(collectionName(userID), nil, s.embed)
	if err != nil {
		return fmt.Errorf("opening collection for user %s: %w", userID, err)
	}

	indexedAt := s.now().UTC().Format(time.RFC3339)
	chunks := splitChunks(text, chunkTarget)
	for i, chunk := range chunks {
		doc := chromem.Document{
			ID:      fmt.Sprintf("%s#%d", sourceID, i),
			Content: chunk,
			Metadata: map[string]string{
				metaSource:    sourceID,
				metaUser:      string(userID),
				metaIndexedAt: indexedAt,
			},
		}
		if err := coll.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("indexing chunk %d of %s: %w", i, sourceID, err)
		}
	}

	observability.FromContext(ctx).Debug("indexed document",
		zap.String("user_id", string(userID)),
		zap.String("source_id", sourceID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// Search runs every query against the user's collection and merges the
// results, keeping each chunk's best similarity. A user with no indexed
// material gets an empty result, not an error.
func (s *Store) Search(ctx context.Context, userID domain.UserID, queries []string, k int) ([]domain.RetrievedChunk, error) {
	coll := s.db.GetCollection(collectionName(userID), s.embed)
	if coll == nil {
		return nil, nil
	}
	// chromem rejects nResults above the document count.
	n := k
	if count := coll.Count(); count < n {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	best := make(map[string]domain.RetrievedChunk)
	order := make([]string, 0, len(queries)*n)
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		results, err := coll.Query(ctx, q, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("querying documents for user %s: %w", userID, err)
		}
		for _, r := range results {
			score := float64(r.Similarity)
			if prev, ok := best[r.ID]; ok {
				if score > prev.Score {
					prev.Score = score
					best[r.ID] = prev
				}
				continue
			}
			best[r.ID] = domain.RetrievedChunk{
				Text:      r.Content,
				Score:     score,
				SourceID:  r.Metadata[metaSource],
				Timestamp: parseIndexedAt(r.Metadata[metaIndexedAt]),
			}
			order = append(order, r.ID)
		}
	}

	chunks := make([]domain.RetrievedChunk, 0, len(order))
	for _, id := range order {
		chunks = append(chunks, best[id])
	}
	return chunks, nil
}

func parseIndexedAt(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// splitChunks breaks text into chunks of roughly target characters, cutting
// only on blank lines so paragraphs stay intact. A single oversized paragraph
// becomes its own chunk.
func splitChunks(text string, target int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var cur strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p) > target {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// HashEmbedding is a deterministic, dependency-free embedding used in local
// mode and tests. It hashes word trigrams into a fixed number of buckets and
// L2-normalizes, which gives stable cosine similarities for overlapping text
// without calling a model.
func HashEmbedding(dims int) chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dims)
		words := strings.Fields(strings.ToLower(text))
		for _, w := range words {
			for _, g := range trigrams(w) {
				h := sha256.Sum256([]byte(g))
				idx := binary.BigEndian.Uint32(h[:4]) % uint32(dims)
				vec[idx]++
			}
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}

func trigrams(w string) []string {
	if len(w) <= 3 {
		return []string{w}
	}
	out := make([]string, 0, len(w)-2)
	for i := 0; i+3 <= len(w); i++ {
		out = append(out, w[i:i+3])
	}
	return out
}
