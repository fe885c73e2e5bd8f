// Package tts synthesizes speech for generate_audio actions through the
// OpenAI speech API and keeps the audio in the blob store.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentdesk/internal/blobstore"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// ErrDisabled is returned by New when speech synthesis is turned off.
var ErrDisabled = errors.New("tts: disabled")

// Config holds TTS configuration.
type Config struct {
	// Enabled toggles speech synthesis.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// APIKey is the OpenAI API key.
	APIKey string `yaml:"api_key" json:"api_key"`

	// BaseURL is the API base URL (optional).
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is the TTS model to use.
	// Options: "tts-1", "tts-1-hd", "gpt-4o-mini-tts"
	// Default: "tts-1"
	Model string `yaml:"model" json:"model"`

	// Voice is the voice to use.
	// Default: "alloy"
	Voice string `yaml:"voice" json:"voice"`

	// Format is the audio format.
	// Options: "mp3", "opus", "aac", "flac", "wav"
	// Default: "mp3"
	Format string `yaml:"format" json:"format"`

	// Speed is the speech speed (0.25 to 4.0).
	// Default: 1.0
	Speed float64 `yaml:"speed" json:"speed"`

	// MaxTextLength truncates longer input, in characters.
	// Default: 4096
	MaxTextLength int `yaml:"max_text_length" json:"max_text_length"`
}

// DefaultConfig returns a disabled configuration with OpenAI defaults.
func DefaultConfig() Config {
	return Config{
		Model:         "tts-1",
		Voice:         "alloy",
		Format:        "mp3",
		Speed:         1.0,
		MaxTextLength: 4096,
	}
}

// ApplyDefaults fills empty fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Voice == "" {
		c.Voice = d.Voice
	}
	if c.Format == "" {
		c.Format = d.Format
	}
	if c.Speed == 0 {
		c.Speed = d.Speed
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = d.MaxTextLength
	}
}

// Validate checks an enabled configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("tts: api_key is required")
	}
	if _, ok := contentTypes[strings.ToLower(c.Format)]; c.Format != "" && !ok {
		return fmt.Errorf("tts: unsupported format %q", c.Format)
	}
	if c.Speed < 0 || c.Speed > 4.0 {
		return errors.New("tts: speed must be between 0 and 4.0")
	}
	return nil
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/opus",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
}

// MediaRecorder records stored media and returns its id.
type MediaRecorder interface {
	SaveMedia(ctx context.Context, media models.Media) (string, error)
}

// Synthesizer turns agent text into stored audio.
type Synthesizer struct {
	client *openai.Client
	cfg    Config
	blobs  blobstore.Store
	media  MediaRecorder
}

// New creates a Synthesizer. It returns ErrDisabled when cfg is not enabled.
func New(cfg Config, blobs blobstore.Store, media MediaRecorder, httpClient *http.Client) (*Synthesizer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if blobs == nil || media == nil {
		return nil, errors.New("tts: blob store and media recorder are required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return &Synthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		blobs:  blobs,
		media:  media,
	}, nil
}

// Synthesize renders text to audio and returns the stored media id. Empty
// text yields "" and no error.
func (s *Synthesizer) Synthesize(ctx context.Context, userID, agentID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if r := []rune(text); len(r) > s.cfg.MaxTextLength {
		text = string(r[:s.cfg.MaxTextLength])
	}

	format := strings.ToLower(s.cfg.Format)
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormat(format),
		Speed:          s.cfg.Speed,
	})
	if err != nil {
		return "", fmt.Errorf("tts: create speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return "", fmt.Errorf("tts: read audio: %w", err)
	}
	if len(audio) == 0 {
		return "", errors.New("tts: empty audio")
	}

	contentType := contentTypes[format]
	key := blobstore.NewKey(userID, blobstore.KindAudio, contentType)
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(audio), contentType); err != nil {
		return "", fmt.Errorf("tts: store audio: %w", err)
	}
	id, err := s.media.SaveMedia(ctx, models.Media{
		UserID:      userID,
		AgentID:     agentID,
		Kind:        "audio",
		BlobKey:     key,
		ContentType: contentType,
		Size:        int64(len(audio)),
	})
	if err != nil {
		return "", fmt.Errorf("tts: record audio: %w", err)
	}
	return id, nil
}
