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
// Package speech defines the optional voice collaborators of a session:
// a Recognizer that records and transcribes user speech and a Synthesizer
// that renders interviewer responses as audio. Both are external engines;
// a session missing either capability degrades to plain text.
package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/teradata-labs/memoir/internal/log"
)

// ErrUnavailable reports that no engine backs the requested capability.
// Callers treat it as a cue to fall back to text, not as a failure.
var ErrUnavailable = errors.New("speech: engine unavailable")

// Recognizer converts one spoken utterance into text.
type Recognizer interface {
	// Name identifies the engine in logs.
	Name() string

	// Capture records microphone input into audioPath (WAV) until the
	// user stops it, then returns the transcription.
	Capture(ctx context.Context, audioPath string) (string, error)
}

// Synthesizer renders text as audible speech.
type Synthesizer interface {
	// Name identifies the engine in logs.
	Name() string

	// Speak synthesizes text, writes the audio to audioPath, and plays
	// it. It returns the path actually written.
	Speak(ctx context.Context, text, audioPath string) (string, error)
}

// Engines bundles the speech capabilities of one session. Either side may
// be nil; the wrappers below degrade to text and warn once per capability
// rather than once per turn.
type Engines struct {
	recognizer  Recognizer
	synthesizer Synthesizer

	warnListen sync.Once
	warnSpeak  sync.Once
}

// NewEngines wraps a recognizer and a synthesizer, either of which may be
// nil.
func NewEngines(r Recognizer, s Synthesizer) *Engines {
	return &Engines{recognizer: r, synthesizer: s}
}

// CanListen reports whether voice input is backed by an engine.
func (e *Engines) CanListen() bool {
	return e != nil && e.recognizer != nil
}

// CanSpeak reports whether voice output is backed by an engine.
func (e *Engines) CanSpeak() bool {
	return e != nil && e.synthesizer != nil
}

// Listen captures one utterance and returns its transcription. Without a
// recognizer it warns once and returns ErrUnavailable so the caller reads
// text instead.
func (e *Engines) Listen(ctx context.Context, audioPath string) (string, error) {
	if !e.CanListen() {
		e.warnListen.Do(func() {
			log.Warn("voice input requested but no recognizer is available, falling back to text")
		})
		return "", ErrUnavailable
	}
	return e.recognizer.Capture(ctx, audioPath)
}

// Speak renders text as audio. Without a synthesizer it warns once and
// returns nil: spoken output is best-effort and the text has already been
// delivered on screen.
func (e *Engines) Speak(ctx context.Context, text, audioPath string) error {
	if !e.CanSpeak() {
		e.warnSpeak.Do(func() {
			log.Warn("voice output requested but no synthesizer is available, responses stay text-only")
		})
		return nil
	}
	_, err := e.synthesizer.Speak(ctx, text, audioPath)
	return err
}
