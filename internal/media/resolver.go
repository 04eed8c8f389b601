package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"broadcast-quiz-service/internal/domain"
)

// ObjectStore checks and signs objects in a bucket.
type ObjectStore interface {
	Stat(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Resolver turns media references into URLs a client can fetch. References
// are paths relative to the local media root, s3://bucket/key objects or
// absolute http(s) URLs.
type Resolver struct {
	root       string
	urlPrefix  string
	store      ObjectStore
	presignTTL time.Duration
}

// NewResolver serves local files under root at urlPrefix. store may be nil
// when no bucket is configured.
func NewResolver(root, urlPrefix string, store ObjectStore, presignTTL time.Duration) *Resolver {
	if urlPrefix == "" {
		urlPrefix = "/media/"
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &Resolver{root: root, urlPrefix: urlPrefix, store: store, presignTTL: presignTTL}
}

// Resolve returns a fetchable URL or an error wrapping domain.ErrMediaUnavailable.
func (r *Resolver) Resolve(ctx context.Context, m domain.Media) (string, error) {
	ref := strings.TrimSpace(m.Ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("%w: empty reference", domain.ErrMediaUnavailable)
	case strings.HasPrefix(ref, "s3://"):
		return r.resolveObject(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref, nil
	default:
		return r.resolveLocal(ref)
	}
}

func (r *Resolver) resolveObject(ctx context.Context, ref string) (string, error) {
	if r.store == nil {
		return "", fmt.Errorf("%w: %s: no object store configured", domain.ErrMediaUnavailable, ref)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return "", fmt.Errorf("%w: malformed object reference %q", domain.ErrMediaUnavailable, ref)
	}
	if err := r.store.Stat(ctx, bucket, key); err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrMediaUnavailable, ref, err)
	}
	signed, err := r.store.PresignGet(ctx, bucket, key, r.presignTTL)
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", domain.ErrMediaUnavailable, ref, err)
	}
	return signed, nil
}

func (r *Resolver) resolveLocal(ref string) (string, error) {
	rel := filepath.ToSlash(filepath.Clean(ref))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q escapes the media root", domain.ErrMediaUnavailable, ref)
	}
	info, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: file not found: %s", domain.ErrMediaUnavailable, ref)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrMediaUnavailable, ref, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: not a file: %s", domain.ErrMediaUnavailable, ref)
	}
	u := url.URL{Path: path.Join(r.urlPrefix, rel)}
	return u.EscapedPath(), nil
}
