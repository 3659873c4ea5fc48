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
package toolkit

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// Call is one parsed tool invocation from a tagged response block.
type Call struct {
	Name string
	Args map[string]interface{}
}

const (
	openTag  = "<tool_calls>"
	closeTag = "</tool_calls>"
)

// xmlNode is the generic element tree the parser unmarshals into.
type xmlNode struct {
	XMLName  xml.Name
	Children []xmlNode `xml:",any"`
	Text     string    `xml:",chardata"`
}

// HasToolCalls reports whether the response contains a tool-calls block.
func HasToolCalls(response string) bool {
	return strings.Contains(response, openTag)
}

// extractBlock returns the first <tool_calls>…</tool_calls> block, or ""
// when the response carries none.
func extractBlock(response string) string {
	start := strings.Index(response, openTag)
	if start == -1 {
		return ""
	}
	end := strings.Index(response[start:], closeTag)
	if end == -1 {
		return ""
	}
	return response[start : start+end+len(closeTag)]
}

// escapeEntities rewrites the block so the XML parser accepts the raw text
// models produce: every ampersand becomes an entity, and quotes are
// round-tripped through entities. Angle brackets are left alone since they
// delimit the call structure itself.
func escapeEntities(block string) string {
	block = strings.ReplaceAll(block, "&", "&amp;")
	block = strings.ReplaceAll(block, `"`, "&quot;")
	block = strings.ReplaceAll(block, "'", "&apos;")
	return block
}

// ParseToolCalls extracts the tool invocations from a response. A response
// without a tool-calls block parses to an empty list; a malformed block is
// an error the caller surfaces to the model for revision.
func ParseToolCalls(response string) ([]Call, error) {
	block := extractBlock(response)
	if block == "" {
		return nil, nil
	}

	var root xmlNode
	if err := xml.Unmarshal([]byte(escapeEntities(block)), &root); err != nil {
		return nil, fmt.Errorf("malformed tool_calls block: %w", err)
	}

	calls := make([]Call, 0, len(root.Children))
	for _, toolNode := range root.Children {
		call := Call{
			Name: toolNode.XMLName.Local,
			Args: make(map[string]interface{}, len(toolNode.Children)),
		}
		for _, argNode := range toolNode.Children {
			call.Args[argNode.XMLName.Local] = parseValue(argNode.Text)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// parseValue interprets an argument's character data: JSON list, JSON
// object, or plain string. Scalar text stays verbatim so identifiers
// like "1.10" survive; tools that want typed scalars declare them in
// their schemas and the executor coerces at dispatch. Single-quoted
// lists are accepted because models emit them routinely.
func parseValue(text string) interface{} {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		var list []interface{}
		if err := json.Unmarshal([]byte(text), &list); err == nil {
			return list
		}
		if !strings.Contains(text, `"`) {
			requoted := strings.ReplaceAll(text, "'", `"`)
			if err := json.Unmarshal([]byte(requoted), &list); err == nil {
				return list
			}
		}
	}

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		var object map[string]interface{}
		if err := json.Unmarshal([]byte(text), &object); err == nil {
			return object
		}
	}

	return text
}

// FormatToolCalls serializes calls into the tagged block format. Arguments
// render in sorted name order so the output is deterministic; parsing a
// formatted block yields the original calls.
func FormatToolCalls(calls []Call) string {
	var b strings.Builder
	b.WriteString(openTag)
	b.WriteString("\n")
	for _, call := range calls {
		b.WriteString("    <")
		b.WriteString(call.Name)
		b.WriteString(">\n")

		names := make([]string, 0, len(call.Args))
		for name := range call.Args {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			b.WriteString("        <")
			b.WriteString(name)
			b.WriteString(">")
			b.WriteString(formatValue(call.Args[name]))
			b.WriteString("</")
			b.WriteString(name)
			b.WriteString(">\n")
		}

		b.WriteString("    </")
		b.WriteString(call.Name)
		b.WriteString(">\n")
	}
	b.WriteString(closeTag)
	return b.String()
}

// formatValue renders an argument value as character data. Lists and
// objects serialize as JSON; everything else as its string form.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}, map[string]interface{}, []string:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// ExtractTagContent returns the trimmed text inside the first
// <tag>...</tag> pair in s, or "" when the pair is absent. Models wrap
// structured fragments of free-form responses in ad-hoc tags; this pulls
// one such fragment out without full parsing.
func ExtractTagContent(s, tag string) string {
	open := "<" + tag + ">"
	i := strings.Index(s, open)
	if i < 0 {
		return ""
	}
	rest := s[i+len(open):]
	j := strings.Index(rest, "</"+tag+">")
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:j])
}

// ExtractToolArguments pulls every value of one argument across all calls
// to one tool in a response. Empty values are dropped. Used by agents that
// need a single field out of a response without dispatching anything.
func ExtractToolArguments(response, toolName, argName string) []interface{} {
	calls, err := ParseToolCalls(response)
	if err != nil {
		return nil
	}

	var values []interface{}
	for _, call := range calls {
		if call.Name != toolName {
			continue
		}
		value, ok := call.Args[argName]
		if !ok || isEmptyValue(value) {
			continue
		}
		values = append(values, value)
	}
	return values
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	}
	return false
}

// DescribeTool renders a tool's name, description, and argument
// declarations as the XML fragment embedded in agent prompts.
func DescribeTool(tool Tool) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("<%s>", tool.Name()))
	lines = append(lines, "  <description>")
	lines = append(lines, "    "+tool.Description())
	lines = append(lines, "  </description>")

	schema := tool.InputSchema()
	if schema != nil && len(schema.Properties) > 0 {
		lines = append(lines, "  <arguments>")

		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			prop := schema.Properties[name]
			lines = append(lines, fmt.Sprintf("    <%s>", name))
			lines = append(lines, fmt.Sprintf("      <type>%s</type>", prop.Type))
			if prop.Description != "" {
				lines = append(lines, "      <description>")
				lines = append(lines, "        "+prop.Description)
				lines = append(lines, "      </description>")
			}
			lines = append(lines, fmt.Sprintf("    </%s>", name))
		}
		lines = append(lines, "  </arguments>")
	}

	lines = append(lines, fmt.Sprintf("</%s>", tool.Name()))
	return strings.Join(lines, "\n")
}
