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
package speech

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	text string
	err  error
}

func (s *stubRecognizer) Name() string { return "stub" }

func (s *stubRecognizer) Capture(ctx context.Context, audioPath string) (string, error) {
	return s.text, s.err
}

type stubSynthesizer struct {
	spoken []string
	err    error
}

func (s *stubSynthesizer) Name() string { return "stub" }

func (s *stubSynthesizer) Speak(ctx context.Context, text, audioPath string) (string, error) {
	s.spoken = append(s.spoken, text)
	return audioPath, s.err
}

func TestEnginesListenUnavailable(t *testing.T) {
	e := NewEngines(nil, nil)
	assert.False(t, e.CanListen())

	_, err := e.Listen(context.Background(), "/tmp/in.wav")
	require.ErrorIs(t, err, ErrUnavailable)

	// Degradation is stable across turns.
	_, err = e.Listen(context.Background(), "/tmp/in.wav")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestEnginesSpeakUnavailableIsSilent(t *testing.T) {
	e := NewEngines(nil, nil)
	assert.False(t, e.CanSpeak())
	require.NoError(t, e.Speak(context.Background(), "hello", "/tmp/out.mp3"))
}

func TestEnginesPassThrough(t *testing.T) {
	rec := &stubRecognizer{text: "I grew up in Vermont."}
	syn := &stubSynthesizer{}
	e := NewEngines(rec, syn)

	require.True(t, e.CanListen())
	require.True(t, e.CanSpeak())

	text, err := e.Listen(context.Background(), "/tmp/in.wav")
	require.NoError(t, err)
	assert.Equal(t, "I grew up in Vermont.", text)

	require.NoError(t, e.Speak(context.Background(), "Tell me more.", "/tmp/out.mp3"))
	assert.Equal(t, []string{"Tell me more."}, syn.spoken)
}

func TestEnginesSpeakPropagatesEngineError(t *testing.T) {
	syn := &stubSynthesizer{err: errors.New("device busy")}
	e := NewEngines(nil, syn)
	require.Error(t, e.Speak(context.Background(), "hello", "/tmp/out.mp3"))
}

func TestFindRecorderProbesInOrder(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(name string) (string, error) {
		if name == "sox" {
			return "/usr/bin/sox", nil
		}
		return "", fmt.Errorf("%s: not found", name)
	}
	assert.Equal(t, "sox", FindRecorder())

	lookPath = func(name string) (string, error) {
		return "", fmt.Errorf("%s: not found", name)
	}
	assert.Empty(t, FindRecorder())
	assert.Empty(t, FindPlayer())
}

func TestNewRecognizerWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	assert.Nil(t, NewRecognizer(Config{}))
}

func TestNewSynthesizerWithoutPlayer(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()
	lookPath = func(name string) (string, error) {
		return "", fmt.Errorf("%s: not found", name)
	}
	assert.Nil(t, NewSynthesizer(Config{APIKey: "sk-test"}))
}
