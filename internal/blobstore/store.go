// Package blobstore stores long-form task outcomes and generated media.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("blobstore: object not found")

// Store is a flat key/value object store.
type Store interface {
	// Put writes data under key and returns a reference URI.
	Put(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Kinds of stored objects.
const (
	KindOutcome = "outcomes"
	KindAudio   = "audio"
	KindImage   = "images"
)

// NewKey returns a fresh key of the form users/<user>/<kind>/<uuid><ext>.
func NewKey(userID, kind, contentType string) string {
	return path.Join("users", safeSegment(userID), safeSegment(kind), uuid.NewString()+ExtensionFor(contentType))
}

// ExtensionFor returns a file extension for a MIME type.
func ExtensionFor(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mime)) {
	case "text/markdown":
		return ".md"
	case "text/plain":
		return ".txt"
	case "application/json":
		return ".json"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".opus"
	case "audio/aac":
		return ".aac"
	case "audio/flac":
		return ".flac"
	default:
		return ".bin"
	}
}

// cleanKey normalizes key and rejects keys that escape the store root.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("blobstore: empty key")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.Trim(key, "/") {
		return "", fmt.Errorf("blobstore: invalid key %q", key)
	}
	return cleaned, nil
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
