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
package evals

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
)

// conversation_statistics.csv counts tokens with the cl100k_base encoding.
const tokenEncoding = "cl100k_base"

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// CountTokens returns the cl100k_base token count of text. When the
// encoding cannot be loaded (offline environments fetch it lazily) it
// falls back to a chars/4 estimate so statistics rows still land.
func CountTokens(text string) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			log.Warn("token encoding unavailable, falling back to character estimate",
				zap.String("encoding", tokenEncoding),
				zap.Error(err),
			)
			return
		}
		encoder = enc
	})

	if encoder == nil {
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	return len(encoder.Encode(text, nil, nil))
}
