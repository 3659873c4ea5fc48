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
package prompts

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

//go:embed templates/*.md
var builtinFS embed.FS

// DefaultVariant is the variant served when none is requested.
const DefaultVariant = "default"

// knownVariants are the filename suffixes recognized as template variants.
// "writer.section.user_add.md" registers key "writer.section" with variant
// "user_add"; any other suffix stays part of the key itself.
var knownVariants = map[string]bool{
	"baseline":    true,
	"user_add":    true,
	"user_update": true,
}

var builtins = mustLoadBuiltins()

func mustLoadBuiltins() map[string]map[string]string {
	loaded, err := loadTemplates(builtinFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("prompts: embedded templates are corrupt: %v", err))
	}
	return loaded
}

// Registry resolves prompt templates by key and variant.
//
// Builtin templates are compiled into the binary from templates/. When an
// override directory is configured, any .md or .txt file in it shadows the
// builtin with the same key and variant; the filename encodes both, e.g.
// "interviewer.system.baseline.md". Lookups interpolate {{.var}} placeholders
// via Interpolate.
type Registry struct {
	overrideDir string

	mu        sync.RWMutex
	overrides map[string]map[string]string // key -> variant -> content
}

// NewRegistry creates a prompt registry. overrideDir may be empty, in which
// case only the builtin templates are served. A configured override directory
// is read on Reload, not at construction.
func NewRegistry(overrideDir string) *Registry {
	return &Registry{
		overrideDir: overrideDir,
		overrides:   make(map[string]map[string]string),
	}
}

// Get retrieves a prompt by key with variable interpolation.
// Returns the default variant.
func (r *Registry) Get(ctx context.Context, key string, vars map[string]interface{}) (string, error) {
	return r.GetWithVariant(ctx, key, DefaultVariant, vars)
}

// GetWithVariant retrieves a specific variant of a prompt.
//
// Example:
//
//	prompt, err := registry.GetWithVariant(ctx, "writer.section", "user_add", vars)
func (r *Registry) GetWithVariant(ctx context.Context, key string, variant string, vars map[string]interface{}) (string, error) {
	content, err := r.lookup(key, variant)
	if err != nil {
		return "", err
	}
	return Interpolate(content, vars), nil
}

func (r *Registry) lookup(key, variant string) (string, error) {
	r.mu.RLock()
	content, overridden := r.overrides[key][variant]
	_, keyOverridden := r.overrides[key]
	r.mu.RUnlock()

	if overridden {
		return content, nil
	}
	if content, ok := builtins[key][variant]; ok {
		return content, nil
	}
	if _, ok := builtins[key]; !ok && !keyOverridden {
		return "", fmt.Errorf("prompt not found: %s", key)
	}
	return "", fmt.Errorf("variant not found: %s (key: %s)", variant, key)
}

// GetMetadata retrieves prompt metadata without the content.
func (r *Registry) GetMetadata(ctx context.Context, key string) (*PromptMetadata, error) {
	r.mu.RLock()
	overrideVariants := r.overrides[key]
	r.mu.RUnlock()

	builtinVariants := builtins[key]
	if len(overrideVariants) == 0 && len(builtinVariants) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}

	variantSet := make(map[string]bool)
	for name := range builtinVariants {
		variantSet[name] = true
	}
	for name := range overrideVariants {
		variantSet[name] = true
	}
	variants := make([]string, 0, len(variantSet))
	for name := range variantSet {
		variants = append(variants, name)
	}
	sort.Slice(variants, func(i, j int) bool {
		if variants[i] == DefaultVariant {
			return true
		}
		if variants[j] == DefaultVariant {
			return false
		}
		return variants[i] < variants[j]
	})

	var variables []string
	seen := make(map[string]bool)
	for _, name := range variants {
		content, ok := overrideVariants[name]
		if !ok {
			content = builtinVariants[name]
		}
		for _, v := range Variables(content) {
			if !seen[v] {
				seen[v] = true
				variables = append(variables, v)
			}
		}
	}

	return &PromptMetadata{
		Key:        key,
		Variants:   variants,
		Variables:  variables,
		Overridden: len(overrideVariants) > 0,
	}, nil
}

// List lists all available prompt keys in sorted order, optionally filtered.
//
// Filters:
//   - "prefix": "scribe."
func (r *Registry) List(ctx context.Context, filters map[string]string) ([]string, error) {
	keySet := make(map[string]bool)
	for key := range builtins {
		keySet[key] = true
	}
	r.mu.RLock()
	for key := range r.overrides {
		keySet[key] = true
	}
	r.mu.RUnlock()

	prefix := filters["prefix"]
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Reload re-reads the override directory. A missing directory is treated as
// an empty override set so deployments without local prompt edits need no
// extra setup.
func (r *Registry) Reload(ctx context.Context) error {
	if r.overrideDir == "" {
		return nil
	}

	loaded, err := loadTemplates(os.DirFS(r.overrideDir), ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			loaded = make(map[string]map[string]string)
		} else {
			return fmt.Errorf("failed to reload prompt overrides: %w", err)
		}
	}

	r.mu.Lock()
	r.overrides = loaded
	r.mu.Unlock()

	return nil
}

// Watch returns a channel that receives updates when override files change.
// Uses fsnotify to watch the override directory tree; each change triggers a
// full Reload before the notification is sent.
func (r *Registry) Watch(ctx context.Context) (<-chan PromptUpdate, error) {
	if r.overrideDir == "" {
		return nil, fmt.Errorf("no override directory configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watchDirectory(watcher, r.overrideDir); err != nil {
		watcher.Close()
		return nil, err
	}

	ch := make(chan PromptUpdate, 10)

	go func() {
		defer watcher.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				ext := filepath.Ext(event.Name)
				if ext != ".md" && ext != ".txt" {
					continue
				}

				if event.Op&fsnotify.Write == fsnotify.Write {
					r.handleFileChange(ch, event.Name, "modified")
				} else if event.Op&fsnotify.Create == fsnotify.Create {
					r.handleFileChange(ch, event.Name, "created")
				} else if event.Op&fsnotify.Remove == fsnotify.Remove {
					r.handleFileChange(ch, event.Name, "deleted")
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				ch <- PromptUpdate{
					Action: "error",
					Error:  err,
				}
			}
		}
	}()

	return ch, nil
}

// handleFileChange reloads the overrides and sends an update notification.
func (r *Registry) handleFileChange(ch chan<- PromptUpdate, name string, action string) {
	key := r.keyFromOverridePath(name)

	if err := r.Reload(context.Background()); err != nil {
		ch <- PromptUpdate{
			Key:    key,
			Action: "error",
			Error:  err,
		}
		return
	}

	ch <- PromptUpdate{
		Key:       key,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (r *Registry) keyFromOverridePath(name string) string {
	rel, err := filepath.Rel(r.overrideDir, name)
	if err != nil {
		rel = filepath.Base(name)
	}
	key, _ := keyAndVariant(filepath.ToSlash(rel))
	return key
}

// watchDirectory adds dir and all its subdirectories to the watcher.
func watchDirectory(watcher *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := watcher.Add(p); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", p, err)
			}
		}
		return nil
	})
}

// loadTemplates reads every .md and .txt file under root, keyed by filename.
// Subdirectories contribute dotted key segments, so "scribe/memory.md" and
// "scribe.memory.md" register the same key.
func loadTemplates(fsys fs.FS, root string) (map[string]map[string]string, error) {
	loaded := make(map[string]map[string]string)

	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := path.Ext(p)
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}

		rel := p
		if root != "." {
			rel = strings.TrimPrefix(p, root+"/")
		}

		key, variant := keyAndVariant(rel)
		if loaded[key] == nil {
			loaded[key] = make(map[string]string)
		}
		loaded[key][variant] = strings.TrimSpace(string(data))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

// keyAndVariant derives the prompt key and variant from a relative path.
//
// Examples:
//   - "interviewer.system.md" -> ("interviewer.system", "default")
//   - "interviewer.system.baseline.md" -> ("interviewer.system", "baseline")
//   - "writer.section.user_add.md" -> ("writer.section", "user_add")
func keyAndVariant(relPath string) (string, string) {
	trimmed := strings.TrimSuffix(relPath, path.Ext(relPath))
	key := strings.ReplaceAll(trimmed, "/", ".")

	parts := strings.Split(key, ".")
	last := parts[len(parts)-1]
	if len(parts) > 1 && knownVariants[last] {
		return strings.Join(parts[:len(parts)-1], "."), last
	}
	return key, DefaultVariant
}
