package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/volume"
)

// Registry maps a Volume to a Client, caching one client per volume and
// additionally keying by scheme://host:port for the planner's
// object-store registry (spec §4.3).
type Registry struct {
	mu        sync.RWMutex
	byVolume  map[string]Client
	byURLHost map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{
		byVolume:  make(map[string]Client),
		byURLHost: make(map[string]Client),
	}
}

// Get returns the cached client for v, building and caching one on
// first use.
func (r *Registry) Get(ctx context.Context, v volume.Volume) (Client, error) {
	r.mu.RLock()
	if c, ok := r.byVolume[v.Ident]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	client, urlKey, err := r.build(ctx, v)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byVolume[v.Ident]; ok {
		return existing, nil
	}
	r.byVolume[v.Ident] = client
	if urlKey != "" {
		r.byURLHost[urlKey] = client
	}
	return client, nil
}

// GetByURL returns the client registered under a given
// scheme://host:port key, as used by the planner's object-store
// registry. It does not build new clients.
func (r *Registry) GetByURL(urlKey string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byURLHost[urlKey]
	return c, ok
}

// Invalidate drops a volume's cached client, forcing a rebuild on next
// Get (used after a volume's credentials are updated).
func (r *Registry) Invalidate(ident string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byVolume, ident)
}

func (r *Registry) build(ctx context.Context, v volume.Volume) (Client, string, error) {
	switch v.Kind {
	case volume.KindMemory:
		return NewMemoryClient(), fmt.Sprintf("memory://%s", v.Ident), nil

	case volume.KindFile:
		path := v.File.Path
		c, err := NewFileClient(path)
		if err != nil {
			return nil, "", err
		}
		return c, fmt.Sprintf("file://%s", path), nil

	case volume.KindS3:
		region := v.Region()
		c, err := NewS3Client(ctx, v.S3.Bucket, region,
			v.S3.Credentials.AccessKeyID, v.S3.Credentials.AccessKeySecret,
			v.S3.Credentials.Token, v.S3.Endpoint)
		if err != nil {
			return nil, "", err
		}
		urlKey := stripCredentials(fmt.Sprintf("s3://%s:443", v.S3.Bucket))
		return c, urlKey, nil

	case volume.KindS3Tables:
		region := v.Region()
		bucket := s3TablesBucket(v.S3Tables.ARN)
		c, err := NewS3Client(ctx, bucket, region,
			v.S3Tables.Credentials.AccessKeyID, v.S3Tables.Credentials.AccessKeySecret,
			v.S3Tables.Credentials.Token, "")
		if err != nil {
			return nil, "", err
		}
		urlKey := stripCredentials(fmt.Sprintf("s3tables://%s:443", bucket))
		return c, urlKey, nil

	default:
		return nil, "", apperror.Newf("objectstore.Registry.build", apperror.KindMissingVolume, "unknown volume kind: %s", v.Kind)
	}
}

// s3TablesBucket derives the S3 bucket name an S3-Tables ARN resolves
// to, per spec §4.3 ("S3Tables: S3 client against a bucket derived from
// the ARN's region").
func s3TablesBucket(arn string) string {
	return fmt.Sprintf("s3tables-%s", region0rFallback(arn))
}

func region0rFallback(arn string) string {
	// arn:aws:s3tables:<region>:<account>:bucket/<name>
	parts := splitN(arn, ':', 6)
	if len(parts) >= 4 {
		return parts[3]
	}
	return "unknown"
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
