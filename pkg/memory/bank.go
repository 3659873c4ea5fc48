// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/llm"
)

const (
	contentFileName = "memory_bank_content.json"
	indexDirName    = "memory_bank_index"
	collectionName  = "memories"
)

// SearchResult pairs a memory with its similarity to the query.
// Similarity follows the 1/(1+distance) convention: higher is more similar.
type SearchResult struct {
	Memory     *Memory
	Similarity float64
}

// Bank is the per-user memory store. All exported methods are safe for
// concurrent use; the scribe writes while the biography team reads.
type Bank struct {
	mu       sync.RWMutex
	memories []*Memory
	byID     map[string]*Memory

	embedder llm.Embedder
	db       *chromem.DB
	col      *chromem.Collection

	// dir is the per-user state directory (LOGS_DIR/<user>). Empty for
	// banks that live only in memory; Save is then a no-op.
	dir     string
	session int
}

// NewBank creates an empty bank with no file persistence.
func NewBank(embedder llm.Embedder) *Bank {
	b := &Bank{
		byID:     make(map[string]*Memory),
		embedder: embedder,
		db:       chromem.NewDB(),
	}
	b.col, _ = b.db.GetOrCreateCollection(collectionName, nil, precomputedOnly)
	return b
}

// LoadBank loads the bank persisted under dir, or returns an empty bank
// when no snapshot exists yet. The similarity index lives in a chromem
// collection under dir/memory_bank_index and persists incrementally; if it
// has drifted from the content snapshot it is rebuilt by re-embedding.
func LoadBank(ctx context.Context, dir string, embedder llm.Embedder) (*Bank, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, indexDirName), false)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory index: %w", err)
	}
	b := &Bank{
		byID:     make(map[string]*Memory),
		embedder: embedder,
		db:       db,
		dir:      dir,
	}
	b.col, err = db.GetOrCreateCollection(collectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory collection: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, contentFileName))
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory bank: %w", err)
	}
	var snapshot struct {
		Memories []*Memory `json:"memories"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse memory bank: %w", err)
	}
	b.memories = snapshot.Memories
	for _, m := range b.memories {
		b.byID[m.ID] = m
	}

	if b.col.Count() != len(b.memories) {
		log.Warn("memory index out of sync with content, rebuilding",
			zap.Int("indexed", b.col.Count()),
			zap.Int("memories", len(b.memories)))
		if err := b.rebuildIndex(ctx); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// precomputedOnly is the collection embedding func. Every document is added
// with a precomputed vector, so chromem should never call it.
func precomputedOnly(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding requested for %q but vectors are precomputed", text)
}

// rebuildIndex re-embeds every memory into a fresh collection.
func (b *Bank) rebuildIndex(ctx context.Context) error {
	if err := b.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("failed to reset memory collection: %w", err)
	}
	col, err := b.db.GetOrCreateCollection(collectionName, nil, precomputedOnly)
	if err != nil {
		return fmt.Errorf("failed to recreate memory collection: %w", err)
	}
	b.col = col
	if len(b.memories) == 0 {
		return nil
	}
	texts := make([]string, len(b.memories))
	for i, m := range b.memories {
		texts[i] = m.EmbeddingText()
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to re-embed memories: %w", err)
	}
	docs := make([]chromem.Document, len(b.memories))
	for i, m := range b.memories {
		docs[i] = chromem.Document{ID: m.ID, Content: texts[i], Embedding: vectors[i]}
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to rebuild memory index: %w", err)
	}
	return nil
}

// SetSession sets the session id stamped onto new memories.
func (b *Bank) SetSession(sessionID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = sessionID
}

// AddMemory mints a new memory, embeds it and stores it. No deduplication
// happens at insert time.
func (b *Bank) AddMemory(ctx context.Context, title, text string, importance int, source string, metadata map[string]string) (*Memory, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	m := &Memory{
		Title:                   title,
		Text:                    text,
		Metadata:                metadata,
		ImportanceScore:         importance,
		Timestamp:               time.Now(),
		SourceInterviewResponse: source,
	}
	vector, err := b.embedder.Embed(ctx, m.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("failed to embed memory: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	m.SessionID = b.session
	// Ids embed a minute-resolution timestamp; retry until the random
	// suffix is unique within the bank.
	for {
		m.ID = NewID(m.Timestamp)
		if _, taken := b.byID[m.ID]; !taken {
			break
		}
	}
	doc := chromem.Document{ID: m.ID, Content: m.EmbeddingText(), Embedding: vector}
	if err := b.col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return nil, fmt.Errorf("failed to index memory: %w", err)
	}
	b.memories = append(b.memories, m)
	b.byID[m.ID] = m
	return m, nil
}

// Search returns the top-k memories by similarity to query. Equal
// similarities are broken by importance, then recency.
func (b *Bank) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	b.mu.RLock()
	n := len(b.memories)
	b.mu.RUnlock()
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}
	vector, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	hits, err := b.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		m, ok := b.byID[hit.ID]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Memory:     m,
			Similarity: similarityFromCosine(hit.Similarity),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, c := results[i], results[j]
		if a.Similarity != c.Similarity {
			return a.Similarity > c.Similarity
		}
		if a.Memory.ImportanceScore != c.Memory.ImportanceScore {
			return a.Memory.ImportanceScore > c.Memory.ImportanceScore
		}
		return a.Memory.Timestamp.After(c.Memory.Timestamp)
	})
	return results, nil
}

// similarityFromCosine maps chromem's cosine similarity onto the
// 1/(1+distance) scale, with distance taken as 1-cosine.
func similarityFromCosine(cos float32) float64 {
	return 1 / (1 + (1 - float64(cos)))
}

// GetByIDs returns the memories for ids in input order. Unknown ids are
// skipped.
func (b *Bank) GetByIDs(ids []string) []*Memory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := b.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// GetMemoryByID returns the memory with the given id, or nil.
func (b *Bank) GetMemoryByID(id string) *Memory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byID[id]
}

// All returns the memories in insertion order.
func (b *Bank) All() []*Memory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Memory, len(b.memories))
	copy(out, b.memories)
	return out
}

// Count returns the number of stored memories.
func (b *Bank) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.memories)
}

// FormatForPrompt renders the memories for ids as the tagged serialization
// fed into prompts, separated by blank lines. Unknown ids are skipped.
func (b *Bank) FormatForPrompt(ids []string, includeSource bool) string {
	memories := b.GetByIDs(ids)
	parts := make([]string, 0, len(memories))
	for _, m := range memories {
		parts = append(parts, m.ToXML(includeSource))
	}
	return strings.Join(parts, "\n\n")
}

// LinkQuestion links questionID to the memory with memoryID, if it exists.
func (b *Bank) LinkQuestion(memoryID, questionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.byID[memoryID]; ok {
		m.LinkQuestion(questionID)
	}
}

// MemoriesByQuestion returns the memories linked to a question.
func (b *Bank) MemoriesByQuestion(questionID string) []*Memory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Memory
	for _, m := range b.memories {
		for _, id := range m.QuestionIDs {
			if id == questionID {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Save writes the content snapshot. The similarity index persists
// incrementally, so only the JSON snapshot is written here. Banks created
// without a directory skip saving.
func (b *Bank) Save() error {
	if b.dir == "" {
		return nil
	}
	b.mu.RLock()
	snapshot := struct {
		Memories []*Memory `json:"memories"`
	}{Memories: b.memories}
	count := len(b.memories)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode memory bank: %w", err)
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create memory bank dir: %w", err)
	}
	path := filepath.Join(b.dir, contentFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write memory bank: %w", err)
	}
	log.Debug("memory bank saved", zap.String("path", path), zap.Int("memories", count))
	return nil
}
