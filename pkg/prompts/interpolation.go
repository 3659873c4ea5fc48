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
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\.(\w+)\}\}`)

// Interpolate performs variable substitution in a prompt template.
//
// Uses {{.variable_name}} syntax (like Go templates but simpler). Values are
// substituted verbatim: template variables routinely carry multi-line blocks
// such as serialized memories, chat history, and nested warning prompts, all
// of which must reach the model unmangled. Placeholders with no matching
// variable are left in place.
//
// Example:
//
//	template := "Summarize the session for {{.user_id}}:\n{{.chat_history}}"
//	result := prompts.Interpolate(template, map[string]interface{}{
//	    "user_id":      "margaret",
//	    "chat_history": history,
//	})
func Interpolate(template string, vars map[string]interface{}) string {
	if len(vars) == 0 {
		return template
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		// match is "{{.name}}"
		name := match[3 : len(match)-2]

		value, ok := vars[name]
		if !ok {
			return match
		}
		return formatValue(value)
	})
}

// Variables returns the placeholder names in template, in order of first
// appearance, without duplicates.
func Variables(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, "\n")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
