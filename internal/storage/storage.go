// Package storage persists movie images. Objects are addressed by a key
// generated from the movie slug; the public URL is derived from the key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
)

var (
	ErrInvalidKey         = errors.New("invalid_storage_key")
	ErrUnsupportedContent = errors.New("unsupported_image_content_type")
)

type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageKey builds movies/<slug>/<ulid><ext> for an uploaded image.
func ImageKey(title, contentType string) (string, error) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedContent
	}
	name := slug.Make(title)
	if name == "" {
		name = "untitled"
	}
	return path.Join("movies", name, strings.ToLower(ulid.Make().String())+ext), nil
}

func validateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

func joinURL(base, key string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "/" + key
	}
	return fmt.Sprintf("%s/%s", base, key)
}
