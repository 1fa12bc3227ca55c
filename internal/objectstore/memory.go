package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/embucket/embucket/internal/apperror"
)

// MemoryClient is a trivial in-process Client, backing Memory volumes
// and temporary tables (spec §3's "temporary tables own a hidden
// Memory volume").
type MemoryClient struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{data: make(map[string][]byte)}
}

func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, apperror.Newf("objectstore.Get", apperror.KindObjectStore, "object not found: %s", key)
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (c *MemoryClient) Put(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.data[key] = cp
	return nil
}

func (c *MemoryClient) Append(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append(c.data[key], data...)
	return nil
}

func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *MemoryClient) List(_ context.Context, prefix string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0)
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ Client = (*MemoryClient)(nil)
