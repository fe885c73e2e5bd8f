// Package imagegen renders generate_image actions through the OpenAI images
// API and keeps the result in the blob store.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentdesk/internal/blobstore"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// ErrDisabled is returned by New when image generation is turned off.
var ErrDisabled = errors.New("imagegen: disabled")

// maxImageBytes bounds images fetched by URL.
const maxImageBytes = 20 << 20

// Config configures image generation.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Model defaults to dall-e-3.
	Model string `yaml:"model" json:"model"`
	// Size defaults to 1024x1024.
	Size string `yaml:"size" json:"size"`
}

// Validate checks an enabled configuration.
func (c Config) Validate() error {
	if c.Enabled && strings.TrimSpace(c.APIKey) == "" {
		return errors.New("imagegen: api_key is required")
	}
	return nil
}

// MediaRecorder records stored media and returns its id.
type MediaRecorder interface {
	SaveMedia(ctx context.Context, media models.Media) (string, error)
}

// Generator creates images from prompts.
type Generator struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	size       string
	blobs      blobstore.Store
	media      MediaRecorder
}

// New creates a Generator. It returns ErrDisabled when cfg is not enabled.
func New(cfg Config, blobs blobstore.Store, media MediaRecorder, httpClient *http.Client) (*Generator, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if blobs == nil || media == nil {
		return nil, errors.New("imagegen: blob store and media recorder are required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	clientCfg.HTTPClient = httpClient

	g := &Generator{
		client:     openai.NewClientWithConfig(clientCfg),
		httpClient: httpClient,
		model:      cfg.Model,
		size:       cfg.Size,
		blobs:      blobs,
		media:      media,
	}
	if g.model == "" {
		g.model = openai.CreateImageModelDallE3
	}
	if g.size == "" {
		g.size = openai.CreateImageSize1024x1024
	}
	return g, nil
}

// Generate renders prompt and returns the stored media id.
func (g *Generator) Generate(ctx context.Context, userID, agentID, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("imagegen: prompt is required")
	}
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		Size:           g.size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("imagegen: create image: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", errors.New("imagegen: no image returned")
	}

	data, contentType, err := g.imageBytes(ctx, resp.Data[0])
	if err != nil {
		return "", err
	}
	key := blobstore.NewKey(userID, blobstore.KindImage, contentType)
	if _, err := g.blobs.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("imagegen: store image: %w", err)
	}
	id, err := g.media.SaveMedia(ctx, models.Media{
		UserID:      userID,
		AgentID:     agentID,
		Kind:        "image",
		BlobKey:     key,
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	if err != nil {
		return "", fmt.Errorf("imagegen: record image: %w", err)
	}
	return id, nil
}

// imageBytes decodes inline base64 data, or downloads the image when the
// upstream returned only a URL.
func (g *Generator) imageBytes(ctx context.Context, item openai.ImageResponseDataInner) ([]byte, string, error) {
	if item.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, "", fmt.Errorf("imagegen: decode image: %w", err)
		}
		return data, http.DetectContentType(data), nil
	}
	if item.URL == "" {
		return nil, "", errors.New("imagegen: image has neither data nor url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: build download: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("imagegen: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: read download: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
