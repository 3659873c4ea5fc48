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
package biography

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// memoryIDPattern matches inline citation tokens like [MEM_03121423_X7K].
	memoryIDPattern = regexp.MustCompile(`\[(MEM_[\w-]+)\]`)
	// citationPattern matches any bracketed token for citation stripping.
	citationPattern = regexp.MustCompile(`\[([\w-]+)\]`)
)

// Section is one node of the biography tree. Subsections are keyed by their
// numbered titles; sibling order is derived from the numeric prefixes.
type Section struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	LastEdit  time.Time `json:"last_edit"`
	// MemoryIDs is the union of citation ids ever seen in Content. Ids are
	// never removed, even when the citing token is edited away.
	MemoryIDs   []string            `json:"memory_ids"`
	Subsections map[string]*Section `json:"subsections"`
}

// NewSection creates a section with a fresh id and the citations already
// present in content.
func NewSection(title, content string) *Section {
	now := time.Now()
	s := &Section{
		ID:          uuid.New().String(),
		Title:       title,
		Content:     content,
		CreatedAt:   now,
		LastEdit:    now,
		Subsections: make(map[string]*Section),
	}
	s.updateMemoryIDs()
	return s
}

// updateMemoryIDs unions the citation ids found in Content into MemoryIDs.
func (s *Section) updateMemoryIDs() {
	for _, id := range ExtractMemoryIDs(s.Content) {
		known := false
		for _, existing := range s.MemoryIDs {
			if existing == id {
				known = true
				break
			}
		}
		if !known {
			s.MemoryIDs = append(s.MemoryIDs, id)
		}
	}
}

// copyWithoutCitations returns a shallow copy whose content has citation
// tokens stripped. Subsections are shared.
func (s *Section) copyWithoutCitations() *Section {
	clone := *s
	clone.Content = StripCitations(s.Content)
	return &clone
}

// orderedTitles returns the subsection titles sorted by numeric prefix.
func (s *Section) orderedTitles() []string {
	titles := make([]string, 0, len(s.Subsections))
	for t := range s.Subsections {
		titles = append(titles, t)
	}
	sort.Slice(titles, func(i, j int) bool {
		return lessNumeric(numericPrefix(titles[i]), numericPrefix(titles[j]))
	})
	return titles
}

// OrderedSubsections returns the subsections sorted by numeric prefix.
func (s *Section) OrderedSubsections() []*Section {
	titles := s.orderedTitles()
	out := make([]*Section, 0, len(titles))
	for _, t := range titles {
		out = append(out, s.Subsections[t])
	}
	return out
}

// ExtractMemoryIDs returns the unique memory ids cited in content, in first
// appearance order.
func ExtractMemoryIDs(content string) []string {
	if content == "" {
		return nil
	}
	var ids []string
	seen := make(map[string]bool)
	for _, match := range memoryIDPattern.FindAllStringSubmatch(content, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			ids = append(ids, match[1])
		}
	}
	return ids
}

// StripCitations removes bracketed citation tokens from content.
func StripCitations(content string) string {
	return citationPattern.ReplaceAllString(content, "")
}

// ValidatePathFormat checks a slash-joined section path against the
// numbering rules: at most three levels below root, first-level titles
// prefixed "N", second-level "N.M" under "N", third-level "N.M.K" under
// "N.M". The empty path addresses the root and is valid. The check is pure;
// it does not consult any tree.
func ValidatePathFormat(path string) error {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	if len(parts) > 3 {
		return fmt.Errorf("invalid path %q: maximum depth is three levels", path)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return fmt.Errorf("invalid path %q: empty section title", path)
		}
	}
	first := titlePrefix(parts[0])
	if !isAllDigits(first) {
		return fmt.Errorf("invalid path %q: first-level title must start with a number", path)
	}
	for i := 1; i < len(parts); i++ {
		if err := validateChildPrefix(parts[i-1], parts[i]); err != nil {
			return fmt.Errorf("invalid path %q: %w", path, err)
		}
	}
	return nil
}

// validateChildPrefix checks that the child's numeric prefix extends the
// parent's, e.g. "1 Early Life" -> "1.1 Childhood".
func validateChildPrefix(parent, child string) error {
	parentNum := titlePrefix(parent)
	childNum := titlePrefix(child)
	wantDots := strings.Count(parentNum, ".") + 1
	if strings.Count(childNum, ".") != wantDots || !strings.HasPrefix(childNum, parentNum+".") {
		return fmt.Errorf("title %q does not extend parent numbering %q", child, parentNum)
	}
	return nil
}

// titlePrefix returns the first whitespace-separated token of a title,
// which carries the section numbering.
func titlePrefix(title string) string {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// numericPrefix parses a title's numbering into its integer components.
// Titles without a numeric prefix sort first.
func numericPrefix(title string) []int {
	var nums []int
	for _, p := range strings.Split(titlePrefix(title), ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

func lessNumeric(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// lastOrdinal returns the final component of a title's numeric prefix, so
// "2.3 First Job" yields 3. Returns 0 when the title has no numbering.
func lastOrdinal(title string) int {
	nums := numericPrefix(title)
	if len(nums) == 0 {
		return 0
	}
	return nums[len(nums)-1]
}
