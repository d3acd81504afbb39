package ai

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// entry is one indexed snippet with its embedding.
type entry struct {
	text      string
	embedding []float64
}

// VectorStore holds embedded snippets in memory and answers questions over
// them. Contents are rebuilt on demand; nothing is persisted.
type VectorStore struct {
	client *Client

	mu      sync.RWMutex
	entries []entry
}

// NewVectorStore wraps the client with an empty index.
func NewVectorStore(client *Client) *VectorStore {
	return &VectorStore{client: client}
}

// Index embeds the given texts and replaces the store contents.
func (v *VectorStore) Index(ctx context.Context, texts []string) error {
	entries := make([]entry, 0, len(texts))
	for _, text := range texts {
		emb, err := v.client.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed %q: %w", text, err)
		}
		entries = append(entries, entry{text: text, embedding: emb})
	}

	v.mu.Lock()
	v.entries = entries
	v.mu.Unlock()
	return nil
}

// Len reports the number of indexed snippets.
func (v *VectorStore) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Ask embeds the question, selects the three most similar snippets as
// context, and asks the chat model.
func (v *VectorStore) Ask(ctx context.Context, question string) (string, error) {
	qEmb, err := v.client.Embed(ctx, question)
	if err != nil {
		return "", err
	}

	v.mu.RLock()
	scored := make([]struct {
		text  string
		score float64
	}, len(v.entries))
	for i, e := range v.entries {
		scored[i].text = e.text
		scored[i].score = cosineSimilarity(e.embedding, qEmb)
	}
	v.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > 3 {
		scored = scored[:3]
	}

	texts := make([]string, len(scored))
	for i, s := range scored {
		texts[i] = s.text
	}
	return v.client.ChatWithContext(ctx, strings.Join(texts, "\n"), question)
}

// cosineSimilarity of two vectors; zero when either has no magnitude or the
// lengths differ.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
