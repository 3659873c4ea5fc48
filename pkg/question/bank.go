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
package question

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
	"github.com/teradata-labs/memoir/pkg/llm"
)

const (
	contentFileName = "historical_question_bank.json"
	indexDirName    = "historical_question_bank_index"
	collectionName  = "questions"
)

// SearchResult pairs a question with its similarity to the query, on the
// same 1/(1+distance) scale the memory bank uses.
type SearchResult struct {
	Question   *Question
	Similarity float64
}

// Bank stores questions with a similarity index. Safe for concurrent use.
type Bank struct {
	mu        sync.RWMutex
	questions []*Question
	byID      map[string]*Question

	embedder llm.Embedder
	db       *chromem.DB
	col      *chromem.Collection

	dir     string
	session int
}

// NewBank creates an empty bank with no file persistence. The proposed
// bank for a session starts this way.
func NewBank(embedder llm.Embedder) *Bank {
	b := &Bank{
		byID:     make(map[string]*Question),
		embedder: embedder,
		db:       chromem.NewDB(),
	}
	b.col, _ = b.db.GetOrCreateCollection(collectionName, nil, precomputedOnly)
	return b
}

// LoadBank loads the historical bank persisted under dir, or returns an
// empty bank when no snapshot exists yet. A similarity index that drifted
// from the content snapshot is rebuilt by re-embedding.
func LoadBank(ctx context.Context, dir string, embedder llm.Embedder) (*Bank, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, indexDirName), false)
	if err != nil {
		return nil, fmt.Errorf("failed to open question index: %w", err)
	}
	b := &Bank{
		byID:     make(map[string]*Question),
		embedder: embedder,
		db:       db,
		dir:      dir,
	}
	b.col, err = db.GetOrCreateCollection(collectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to open question collection: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, contentFileName))
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank: %w", err)
	}
	var snapshot struct {
		Questions []*Question `json:"questions"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	b.questions = snapshot.Questions
	for _, q := range b.questions {
		b.byID[q.ID] = q
	}

	if b.col.Count() != len(b.questions) {
		log.Warn("question index out of sync with content, rebuilding",
			zap.Int("indexed", b.col.Count()),
			zap.Int("questions", len(b.questions)))
		if err := b.rebuildIndex(ctx); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func precomputedOnly(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding requested for %q but vectors are precomputed", text)
}

func (b *Bank) rebuildIndex(ctx context.Context) error {
	if err := b.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("failed to reset question collection: %w", err)
	}
	col, err := b.db.GetOrCreateCollection(collectionName, nil, precomputedOnly)
	if err != nil {
		return fmt.Errorf("failed to recreate question collection: %w", err)
	}
	b.col = col
	if len(b.questions) == 0 {
		return nil
	}
	texts := make([]string, len(b.questions))
	for i, q := range b.questions {
		texts[i] = q.Content
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to re-embed questions: %w", err)
	}
	docs := make([]chromem.Document, len(b.questions))
	for i, q := range b.questions {
		docs[i] = chromem.Document{ID: q.ID, Content: texts[i], Embedding: vectors[i]}
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to rebuild question index: %w", err)
	}
	return nil
}

// SetSession sets the session id stamped onto new questions.
func (b *Bank) SetSession(sessionID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = sessionID
}

// AddQuestion mints a new question, embeds it and stores it. memoryIDs may
// be nil for proposed questions that have not been asked yet.
func (b *Bank) AddQuestion(ctx context.Context, content, proposer string, memoryIDs []string) (*Question, error) {
	q := &Question{
		Content:   content,
		MemoryIDs: memoryIDs,
		Timestamp: time.Now(),
		Proposer:  proposer,
	}
	vector, err := b.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	q.SessionID = b.session
	for {
		q.ID = NewID(q.Timestamp)
		if _, taken := b.byID[q.ID]; !taken {
			break
		}
	}
	doc := chromem.Document{ID: q.ID, Content: content, Embedding: vector}
	if err := b.col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return nil, fmt.Errorf("failed to index question: %w", err)
	}
	b.questions = append(b.questions, q)
	b.byID[q.ID] = q
	return q, nil
}

// Search returns the top-k questions by similarity to query. Ties go to
// the more recent question.
func (b *Bank) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	b.mu.RLock()
	n := len(b.questions)
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
		return nil, fmt.Errorf("question search failed: %w", err)
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		q, ok := b.byID[hit.ID]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Question:   q,
			Similarity: similarityFromCosine(hit.Similarity),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, c := results[i], results[j]
		if a.Similarity != c.Similarity {
			return a.Similarity > c.Similarity
		}
		return a.Question.Timestamp.After(c.Question.Timestamp)
	})
	return results, nil
}

// SearchBoth runs the same query over the historical and proposed banks
// (k results each), de-duplicates by content string keeping the first
// occurrence with historical results ahead of proposed ones, and returns
// the top-k of the merge by similarity. Either bank may be nil.
func SearchBoth(ctx context.Context, historical, proposed *Bank, query string, k int) ([]SearchResult, error) {
	var combined []SearchResult
	for _, b := range []*Bank{historical, proposed} {
		if b == nil {
			continue
		}
		results, err := b.Search(ctx, query, k)
		if err != nil {
			return nil, err
		}
		combined = append(combined, results...)
	}
	seen := make(map[string]bool, len(combined))
	merged := combined[:0]
	for _, r := range combined {
		if seen[r.Question.Content] {
			continue
		}
		seen[r.Question.Content] = true
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if k < len(merged) {
		merged = merged[:k]
	}
	return merged, nil
}

func similarityFromCosine(cos float32) float64 {
	return 1 / (1 + (1 - float64(cos)))
}

// GetQuestionByID returns the question with the given id, or nil.
func (b *Bank) GetQuestionByID(id string) *Question {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byID[id]
}

// LinkMemory links memoryID to the question with questionID, if it exists.
func (b *Bank) LinkMemory(questionID, memoryID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.byID[questionID]; ok {
		q.LinkMemory(memoryID)
	}
}

// All returns the questions in insertion order.
func (b *Bank) All() []*Question {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// Count returns the number of stored questions.
func (b *Bank) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.questions)
}

// Save writes the content snapshot; the similarity index persists
// incrementally. Banks created without a directory skip saving.
func (b *Bank) Save() error {
	if b.dir == "" {
		return nil
	}
	b.mu.RLock()
	snapshot := struct {
		Questions []*Question `json:"questions"`
	}{Questions: b.questions}
	count := len(b.questions)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode question bank: %w", err)
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create question bank dir: %w", err)
	}
	path := filepath.Join(b.dir, contentFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write question bank: %w", err)
	}
	log.Debug("question bank saved", zap.String("path", path), zap.Int("questions", count))
	return nil
}
