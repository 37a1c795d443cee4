package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrImageTooLarge   = errors.New("image exceeds maximum size")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrInvalidImage    = errors.New("image data is not valid base64")
)

// Image is an inline attachment as received from a client.
type Image struct {
	Data string
	Name string
	Type string
}

// StoredImage is an uploaded image: its storage key and a fetchable URL.
type StoredImage struct {
	Key string
	URL string
}

// ImageUploader decodes inline images, stores them and resolves a URL.
type ImageUploader struct {
	store    Storage
	prefix   string
	urlTTL   time.Duration
	maxBytes int64
	now      func() time.Time
}

func NewImageUploader(store Storage, prefix string, urlTTL time.Duration, maxBytes int64) *ImageUploader {
	return &ImageUploader{
		store:    store,
		prefix:   strings.Trim(prefix, "/"),
		urlTTL:   urlTTL,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Upload stores img under a key derived from the sender, the current time and
// the sanitized file name, and returns its key and a fetchable URL.
func (u *ImageUploader) Upload(ctx context.Context, senderID string, img Image) (StoredImage, error) {
	mime := strings.ToLower(strings.TrimSpace(img.Type))
	subtype, ok := strings.CutPrefix(mime, "image/")
	if !ok || subtype == "" {
		return StoredImage{}, fmt.Errorf("%w: %q", ErrUnsupportedType, img.Type)
	}

	data, err := decodeImageData(img.Data)
	if err != nil {
		return StoredImage{}, err
	}
	if u.maxBytes > 0 && int64(len(data)) > u.maxBytes {
		return StoredImage{}, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(data))
	}

	key := u.key(senderID, img.Name, subtype)
	if err := u.store.Write(ctx, key, bytes.NewReader(data), int64(len(data)), mime); err != nil {
		return StoredImage{}, fmt.Errorf("store image: %w", err)
	}
	url, err := u.store.GetURL(ctx, key, u.urlTTL)
	if err != nil {
		if derr := u.Discard(ctx, key); derr != nil {
			err = errors.Join(err, derr)
		}
		return StoredImage{}, fmt.Errorf("resolve image url: %w", err)
	}
	return StoredImage{Key: key, URL: url}, nil
}

// Discard removes an uploaded image whose message was never persisted.
func (u *ImageUploader) Discard(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := u.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("discard image %s: %w", key, err)
	}
	return nil
}

func (u *ImageUploader) key(senderID, name, subtype string) string {
	if senderID == "" {
		senderID = "anonymous"
	}
	base := sanitizeName(strings.TrimSuffix(name, extOf(name)))
	k := fmt.Sprintf("%s-%d-%s.%s", sanitizeName(senderID), u.now().UnixNano(), base, sanitizeName(subtype))
	if u.prefix == "" {
		return k
	}
	return u.prefix + "/" + k
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "image"
	}
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[i:]
	}
	return ""
}

// decodeImageData accepts a data URL or bare standard/URL-safe base64.
func decodeImageData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil && len(data) > 0 {
			return data, nil
		}
	}
	return nil, ErrInvalidImage
}
