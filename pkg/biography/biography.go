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
// Package biography implements the versioned biography tree: numbered
// prose sections with inline memory citations, a tree-wide write guard so
// parallel section writers never corrupt structure, and per-user versioned
// JSON plus markdown snapshots.
package biography

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
)

// pendingWritesTimeout bounds how long Save waits for in-flight mutations.
const pendingWritesTimeout = 30 * time.Second

// Biography is the tree of sections for one user. Mutations serialize on a
// tree-wide guard; Save additionally waits until no mutation is pending so
// a snapshot never captures a partial edit. Reads take only a shared lock.
type Biography struct {
	UserID string
	// Version is the snapshot version Save writes, fixed at open time to
	// one past the highest version on disk.
	Version int

	mu   sync.RWMutex
	root *Section

	pendMu  sync.Mutex
	pending int
	idle    chan struct{}

	dir string
}

// New creates an empty biography rooted at "Biography of <userID>" that
// saves into dir.
func New(userID, dir string) *Biography {
	idle := make(chan struct{})
	close(idle)
	return &Biography{
		UserID:  userID,
		Version: nextVersion(dir),
		root:    NewSection("Biography of "+userID, ""),
		idle:    idle,
		dir:     dir,
	}
}

// Load loads the biography snapshot for userID from dir. A version of zero
// or below selects the latest snapshot; a missing snapshot yields a fresh
// empty biography.
func Load(userID, dir string, version int) (*Biography, error) {
	b := New(userID, dir)
	target := version
	if target <= 0 {
		target = b.Version - 1
		if target < 1 {
			return b, nil
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("biography_%d.json", target)))
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read biography: %w", err)
	}
	root := &Section{}
	if err := json.Unmarshal(data, root); err != nil {
		return nil, fmt.Errorf("failed to parse biography: %w", err)
	}
	ensureSubsections(root)
	b.root = root
	return b, nil
}

// nextVersion scans dir for biography_<N>.json snapshots and returns N+1.
func nextVersion(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 1
	}
	max := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "biography_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "biography_"), ".json"))
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max + 1
}

func ensureSubsections(s *Section) {
	if s.Subsections == nil {
		s.Subsections = make(map[string]*Section)
	}
	for _, child := range s.Subsections {
		ensureSubsections(child)
	}
}

// Root returns the root section.
func (b *Biography) Root() *Section {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.root
}

// GetSection finds a section by path (exact walk) or, when path is empty,
// by title (depth-first search). With hideCitations the returned section is
// a shallow copy whose content has citation tokens stripped. A missing
// section returns nil with no error.
func (b *Biography) GetSection(path, title string, hideCitations bool) (*Section, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sec, err := b.resolve(path, title)
	if err != nil || sec == nil {
		return nil, err
	}
	if hideCitations {
		return sec.copyWithoutCitations(), nil
	}
	return sec, nil
}

// resolve locates a section by path or title. Callers hold at least a read
// lock.
func (b *Biography) resolve(path, title string) (*Section, error) {
	if path == "" && title == "" {
		return nil, errors.New("must provide a path or title")
	}
	if path != "" && title != "" && !strings.HasSuffix(path, title) {
		return nil, fmt.Errorf("path %q and title %q must match", path, title)
	}
	if path != "" {
		if err := ValidatePathFormat(path); err != nil {
			return nil, err
		}
		return b.sectionByPath(path), nil
	}
	return b.sectionByTitle(b.root, title), nil
}

func (b *Biography) sectionByPath(path string) *Section {
	current := b.root
	for _, part := range strings.Split(path, "/") {
		child, ok := current.Subsections[part]
		if !ok {
			return nil
		}
		current = child
	}
	return current
}

func (b *Biography) sectionByTitle(s *Section, title string) *Section {
	if s.Title == title {
		return s
	}
	for _, child := range s.Subsections {
		if found := b.sectionByTitle(child, title); found != nil {
			return found
		}
	}
	return nil
}

// findParent returns the parent of the section with the given title, or
// nil for the root and unknown titles.
func (b *Biography) findParent(s *Section, title string) *Section {
	for childTitle, child := range s.Subsections {
		if childTitle == title {
			return s
		}
		if found := b.findParent(child, title); found != nil {
			return found
		}
	}
	return nil
}

// PathExists reports whether path addresses an existing section.
func (b *Biography) PathExists(path string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if ValidatePathFormat(path) != nil {
		return false
	}
	return b.sectionByPath(path) != nil
}

// ValidateNewSectionPath checks that path can be added to the current
// tree: the format rules plus sequential numbering, so section "3" cannot
// be created while "2" is missing. Existing path components pass.
func (b *Biography) ValidateNewSectionPath(path string) error {
	if path == "" {
		return errors.New("section path cannot be empty")
	}
	if err := ValidatePathFormat(path); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.root.Subsections
	parent := b.root.Title
	for _, part := range strings.Split(path, "/") {
		if child, ok := subs[part]; ok {
			subs = child.Subsections
			parent = child.Title
			continue
		}
		if got, want := lastOrdinal(part), len(subs)+1; got != want {
			return fmt.Errorf("section %q breaks sequential numbering under %q: next ordinal is %d", part, parent, want)
		}
		// Nothing exists below a section that is itself new.
		subs = nil
		parent = part
	}
	return nil
}

// AddSection creates a section at path, creating missing intermediate
// parents with empty content. On an existing section empty content is a
// no-op and non-empty content rewrites the prose in place, keeping
// subsections and previously cited memory ids.
func (b *Biography) AddSection(path, content string) (*Section, error) {
	b.beginWrite()
	defer b.endWrite()
	b.mu.Lock()
	defer b.mu.Unlock()

	if path == "" {
		return nil, errors.New("section path cannot be empty")
	}
	if err := ValidatePathFormat(path); err != nil {
		return nil, err
	}
	parts := strings.Split(path, "/")
	current := b.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := current.Subsections[part]
		if !ok {
			child = NewSection(part, "")
			current.Subsections[part] = child
		}
		current = child
	}
	title := parts[len(parts)-1]
	if existing, ok := current.Subsections[title]; ok {
		if content != "" {
			existing.Content = content
			existing.updateMemoryIDs()
		}
		return existing, nil
	}
	s := NewSection(title, content)
	current.Subsections[s.Title] = s
	return s, nil
}

// SectionUpdate describes an update_section mutation. A nil Content leaves
// the section's content unchanged; an empty NewTitle keeps the title.
type SectionUpdate struct {
	Path     string
	Title    string
	Content  *string
	NewTitle string
}

// UpdateSection updates a section's content and optionally its title.
// Newly cited memory ids are unioned into the section's memory list;
// previously recorded ids stay even when their citation token was edited
// away.
func (b *Biography) UpdateSection(u SectionUpdate) (*Section, error) {
	b.beginWrite()
	defer b.endWrite()
	b.mu.Lock()
	defer b.mu.Unlock()

	sec, err := b.resolve(u.Path, u.Title)
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return nil, fmt.Errorf("section %q not found", firstNonEmpty(u.Path, u.Title))
	}
	if u.Content != nil {
		sec.Content = *u.Content
		sec.LastEdit = time.Now()
		sec.updateMemoryIDs()
	}
	if u.NewTitle != "" && u.NewTitle != sec.Title {
		if parent := b.findParent(b.root, sec.Title); parent != nil {
			delete(parent.Subsections, sec.Title)
			sec.Title = u.NewTitle
			parent.Subsections[sec.Title] = sec
		} else {
			sec.Title = u.NewTitle
		}
		sec.LastEdit = time.Now()
	}
	return sec, nil
}

// DeleteSection removes a leaf section; a section with children keeps its
// node but loses its content so descendants stay addressable. Returns
// false when no section matched. The root cannot be deleted.
func (b *Biography) DeleteSection(path, title string) (bool, error) {
	b.beginWrite()
	defer b.endWrite()
	b.mu.Lock()
	defer b.mu.Unlock()

	sec, err := b.resolve(path, title)
	if err != nil {
		return false, err
	}
	if sec == nil {
		return false, nil
	}
	if sec == b.root {
		return false, errors.New("cannot delete root section")
	}
	if len(sec.Subsections) > 0 {
		sec.Content = ""
		sec.LastEdit = time.Now()
		return true, nil
	}
	parent := b.findParent(b.root, sec.Title)
	if parent == nil {
		return false, nil
	}
	delete(parent.Subsections, sec.Title)
	return true, nil
}

// Outline renders the section titles as an indented outline in sibling
// order, for feeding the current structure into prompts.
func (b *Biography) Outline() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sb strings.Builder
	var walk func(s *Section, depth int)
	walk = func(s *Section, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(s.Title)
		sb.WriteByte('\n')
		for _, t := range s.orderedTitles() {
			walk(s.Subsections[t], depth+1)
		}
	}
	walk(b.root, 0)
	return strings.TrimRight(sb.String(), "\n")
}

// ExportMarkdown renders the biography as markdown with heading levels
// equal to section depth.
func (b *Biography) ExportMarkdown(hideCitations bool) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sb strings.Builder
	writeMarkdown(&sb, b.root, 1, hideCitations)
	return sb.String()
}

func writeMarkdown(sb *strings.Builder, s *Section, level int, hide bool) {
	fmt.Fprintf(sb, "%s %s\n\n", strings.Repeat("#", level), s.Title)
	content := s.Content
	if hide {
		content = StripCitations(content)
	}
	if content != "" {
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	for _, t := range s.orderedTitles() {
		writeMarkdown(sb, s.Subsections[t], level+1, hide)
	}
}

// Save writes the JSON snapshot for this biography's version, and the
// markdown rendering when saveMarkdown is set. It first waits (bounded)
// for pending mutations so the snapshot is consistent; citations are kept
// in the JSON but stripped from the markdown.
func (b *Biography) Save(saveMarkdown bool) error {
	if err := b.waitIdle(pendingWritesTimeout); err != nil {
		return err
	}
	b.mu.Lock()
	data, err := json.MarshalIndent(b.root, "", "  ")
	var md string
	if saveMarkdown {
		var sb strings.Builder
		writeMarkdown(&sb, b.root, 1, true)
		md = sb.String()
	}
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode biography: %w", err)
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create biography dir: %w", err)
	}
	jsonPath := filepath.Join(b.dir, fmt.Sprintf("biography_%d.json", b.Version))
	if err := writeFileAtomic(jsonPath, data); err != nil {
		return fmt.Errorf("failed to write biography: %w", err)
	}
	if saveMarkdown {
		mdPath := filepath.Join(b.dir, fmt.Sprintf("biography_%d.md", b.Version))
		if err := writeFileAtomic(mdPath, []byte(md)); err != nil {
			return fmt.Errorf("failed to write biography markdown: %w", err)
		}
	}
	log.Debug("biography saved", zap.String("path", jsonPath), zap.Int("version", b.Version))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// beginWrite marks a mutation in flight so Save can wait for quiescence.
func (b *Biography) beginWrite() {
	b.pendMu.Lock()
	if b.pending == 0 {
		b.idle = make(chan struct{})
	}
	b.pending++
	b.pendMu.Unlock()
}

func (b *Biography) endWrite() {
	b.pendMu.Lock()
	b.pending--
	if b.pending == 0 {
		close(b.idle)
	}
	b.pendMu.Unlock()
}

func (b *Biography) waitIdle(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		b.pendMu.Lock()
		pending := b.pending
		ch := b.idle
		b.pendMu.Unlock()
		if pending == 0 {
			return nil
		}
		select {
		case <-ch:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for %d pending biography writes", pending)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
