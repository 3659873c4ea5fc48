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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/memoir/internal/log"
)

// Hosted engine defaults. The engines themselves live behind OpenAI's audio
// endpoints; this package only records, uploads, and plays.
const (
	DefaultTranscribeEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	DefaultSynthesizeEndpoint = "https://api.openai.com/v1/audio/speech"
	DefaultTranscribeModel    = "whisper-1"
	DefaultSynthesizeModel    = "tts-1"
	DefaultVoice              = "alloy"
	defaultHTTPTimeout        = 120 * time.Second
)

// recorderCommands and playerCommands are probed in order; the first binary
// on PATH wins. Each entry yields the argv for one capture or playback run.
var recorderCommands = []struct {
	name string
	args func(path string) []string
}{
	{"arecord", func(path string) []string {
		return []string{"-q", "-f", "cd", "-t", "wav", path}
	}},
	{"rec", func(path string) []string {
		return []string{"-q", path}
	}},
	{"sox", func(path string) []string {
		return []string{"-q", "-d", path}
	}},
}

var playerCommands = []struct {
	name string
	args func(path string) []string
}{
	{"afplay", func(path string) []string { return []string{path} }},
	{"mpg123", func(path string) []string { return []string{"-q", path} }},
	{"ffplay", func(path string) []string {
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
	}},
}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// FindRecorder returns the first available capture binary, or "" when none
// is installed.
func FindRecorder() string {
	for _, c := range recorderCommands {
		if _, err := lookPath(c.name); err == nil {
			return c.name
		}
	}
	return ""
}

// FindPlayer returns the first available playback binary, or "" when none
// is installed.
func FindPlayer() string {
	for _, c := range playerCommands {
		if _, err := lookPath(c.name); err == nil {
			return c.name
		}
	}
	return ""
}

// Config holds settings for the hosted speech engines.
type Config struct {
	APIKey string

	TranscribeEndpoint string // Default: OpenAI transcriptions
	TranscribeModel    string // Default: whisper-1

	SynthesizeEndpoint string // Default: OpenAI speech
	SynthesizeModel    string // Default: tts-1
	Voice              string // Default: alloy

	Timeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.APIKey == "" {
		out.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if out.TranscribeEndpoint == "" {
		out.TranscribeEndpoint = DefaultTranscribeEndpoint
	}
	if out.TranscribeModel == "" {
		out.TranscribeModel = DefaultTranscribeModel
	}
	if out.SynthesizeEndpoint == "" {
		out.SynthesizeEndpoint = DefaultSynthesizeEndpoint
	}
	if out.SynthesizeModel == "" {
		out.SynthesizeModel = DefaultSynthesizeModel
	}
	if out.Voice == "" {
		out.Voice = DefaultVoice
	}
	if out.Timeout == 0 {
		out.Timeout = defaultHTTPTimeout
	}
	return out
}

// NewRecognizer builds a whisper-backed recognizer, probing for a capture
// binary. Returns nil (not an error) when the capability is absent so that
// callers hand the nil straight to NewEngines.
func NewRecognizer(cfg Config) Recognizer {
	c := cfg.withDefaults()
	if c.APIKey == "" {
		log.Warn("voice input disabled, no API key for the transcription engine")
		return nil
	}
	recorder := FindRecorder()
	if recorder == "" {
		log.Warn("voice input disabled, no capture binary on PATH",
			zap.String("tried", "arecord, rec, sox"),
		)
		return nil
	}
	return &whisperRecognizer{
		cfg:      c,
		recorder: recorder,
		client:   &http.Client{Timeout: c.Timeout},
	}
}

// NewSynthesizer builds a hosted TTS synthesizer, probing for a playback
// binary. Returns nil when the capability is absent.
func NewSynthesizer(cfg Config) Synthesizer {
	c := cfg.withDefaults()
	if c.APIKey == "" {
		log.Warn("voice output disabled, no API key for the synthesis engine")
		return nil
	}
	player := FindPlayer()
	if player == "" {
		log.Warn("voice output disabled, no playback binary on PATH",
			zap.String("tried", "afplay, mpg123, ffplay"),
		)
		return nil
	}
	return &hostedSynthesizer{
		cfg:    c,
		player: player,
		client: &http.Client{Timeout: c.Timeout},
	}
}

type whisperRecognizer struct {
	cfg      Config
	recorder string
	client   *http.Client
}

func (r *whisperRecognizer) Name() string { return "whisper" }

// Capture records until the user presses Enter, then uploads the WAV for
// transcription.
func (r *whisperRecognizer) Capture(ctx context.Context, audioPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare audio dir: %w", err)
	}

	for _, c := range recorderCommands {
		if c.name != r.recorder {
			continue
		}
		if err := r.record(ctx, c.name, c.args(audioPath)); err != nil {
			return "", err
		}
		return r.transcribe(ctx, audioPath)
	}
	return "", fmt.Errorf("recorder %q no longer available", r.recorder)
}

func (r *whisperRecognizer) record(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start recorder %s: %w", name, err)
	}

	fmt.Println("Recording... press Enter to stop.")
	done := make(chan struct{})
	go func() {
		var line string
		fmt.Scanln(&line)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	// Recorders flush the WAV header on SIGINT, not on SIGKILL.
	_ = cmd.Process.Signal(os.Interrupt)
	_ = cmd.Wait()
	return ctx.Err()
}

func (r *whisperRecognizer) transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to read recording: %w", err)
	}
	if err := mw.WriteField("model", r.cfg.TranscribeModel); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.cfg.TranscribeEndpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return out.Text, nil
}

type hostedSynthesizer struct {
	cfg    Config
	player string
	client *http.Client
}

func (s *hostedSynthesizer) Name() string { return "tts" }

// Speak synthesizes text to an MP3 at audioPath and plays it.
func (s *hostedSynthesizer) Speak(ctx context.Context, text, audioPath string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"model": s.cfg.SynthesizeModel,
		"voice": s.cfg.Voice,
		"input": text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.SynthesizeEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare audio dir: %w", err)
	}
	out, err := os.Create(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	if err := s.play(ctx, audioPath); err != nil {
		// The file is on disk either way; playback is best-effort.
		log.Warn("audio playback failed", zap.String("path", audioPath), zap.Error(err))
	}
	return audioPath, nil
}

func (s *hostedSynthesizer) play(ctx context.Context, audioPath string) error {
	for _, c := range playerCommands {
		if c.name != s.player {
			continue
		}
		return exec.CommandContext(ctx, c.name, c.args(audioPath)...).Run()
	}
	return fmt.Errorf("player %q no longer available", s.player)
}
