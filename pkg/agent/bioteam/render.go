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
package bioteam

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/teradata-labs/memoir/pkg/biography"
	"github.com/teradata-labs/memoir/pkg/memory"
	"github.com/teradata-labs/memoir/pkg/toolkit"
)

// recallTopK is how many memories the recall tool surfaces.
const recallTopK = 5

// sectionNode mirrors the title tree fed to planner prompts.
type sectionNode struct {
	Title       string        `json:"title"`
	Subsections []sectionNode `json:"subsections,omitempty"`
}

// structureJSON renders the tree's titles as indented JSON.
func structureJSON(bio *biography.Biography) string {
	data, err := json.MarshalIndent(structureOf(bio.Root()), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func structureOf(s *biography.Section) sectionNode {
	node := sectionNode{Title: s.Title}
	for _, child := range s.OrderedSubsections() {
		node.Subsections = append(node.Subsections, structureOf(child))
	}
	return node
}

// fullContent renders every section as a "[Title]" line followed by its
// content, depth first.
func fullContent(bio *biography.Biography) string {
	var lines []string
	for _, child := range bio.Root().OrderedSubsections() {
		lines = appendSectionLines(lines, child)
	}
	return strings.Join(lines, "\n")
}

func appendSectionLines(lines []string, s *biography.Section) []string {
	lines = append(lines, fmt.Sprintf("[%s]", s.Title))
	if s.Content != "" {
		lines = append(lines, s.Content)
	}
	for _, child := range s.OrderedSubsections() {
		lines = appendSectionLines(lines, child)
	}
	return lines
}

// memoriesXML renders memories in their prompt serialization.
func memoriesXML(memories []*memory.Memory, includeSource bool) string {
	blocks := make([]string, 0, len(memories))
	for _, m := range memories {
		blocks = append(blocks, m.ToXML(includeSource))
	}
	return strings.Join(blocks, "\n\n")
}

// followUpsXML renders collected follow-up questions for the questions
// rebuild prompt.
func followUpsXML(followUps []FollowUp) string {
	blocks := make([]string, 0, len(followUps))
	for _, f := range followUps {
		blocks = append(blocks, fmt.Sprintf("<question>\n<content>%s</content>\n<context>%s</context>\n</question>",
			f.Content, f.Context))
	}
	return strings.Join(blocks, "\n\n")
}

// bulletLines renders items one per line with a leading dash.
func bulletLines(items []string) string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = "- " + item
	}
	return strings.Join(out, "\n")
}

// previousToolCalls re-renders the tool calls from a model response so a
// warning prompt can quote them back.
func previousToolCalls(response string) string {
	calls, err := toolkit.ParseToolCalls(response)
	if err != nil || len(calls) == 0 {
		return ""
	}
	return toolkit.FormatToolCalls(calls)
}

// toolErrorLines pulls the error lines out of an aggregated tool result.
func toolErrorLines(result string) string {
	var errs []string
	for _, line := range strings.Split(result, "\n") {
		if strings.HasPrefix(line, "Error calling tool '") {
			errs = append(errs, line)
		}
	}
	return strings.Join(errs, "\n")
}

// titleOrdinal returns the last numeric component of a title's numbering
// prefix: "3.1 First Job" yields 1.
func titleOrdinal(title string) int {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return 0
	}
	parts := strings.Split(fields[0], ".")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return n
}

// parentPath returns the path with its last component removed, or "".
func parentPath(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

// searchMemories serves the recall tool for the section writer and the
// summary writer.
func searchMemories(ctx context.Context, bank *memory.Bank, args map[string]interface{}) (string, error) {
	query := toolkit.StringArg(args, "query")
	reasoning := toolkit.StringArg(args, "reasoning")

	results, err := bank.Search(ctx, query, recallTopK)
	if err != nil {
		return "", fmt.Errorf("error searching memories: %w", err)
	}

	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("<memory>%s</memory>", r.Memory.Text))
	}
	body := "No relevant memories found."
	if len(lines) > 0 {
		body = strings.Join(lines, "\n")
	}
	return fmt.Sprintf("<memory_search>\n<query>%s</query>\n<reasoning>%s</reasoning>\n<results>\n%s\n</results>\n</memory_search>",
		query, reasoning, body), nil
}
