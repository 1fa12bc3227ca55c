package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/embucket/embucket/internal/apperror"
)

// FileClient is a local-filesystem Client rooted at a directory, with
// automatic cleanup on delete (spec §4.3's File(path) variant).
type FileClient struct {
	root string
}

func NewFileClient(root string) (*FileClient, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperror.New("objectstore.NewFileClient", apperror.KindObjectStore, err)
	}
	return &FileClient{root: root}, nil
}

func (c *FileClient) path(key string) string {
	return filepath.Join(c.root, filepath.FromSlash(key))
}

func (c *FileClient) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, apperror.New("objectstore.Get", apperror.KindObjectStore, err)
	}
	return data, nil
}

func (c *FileClient) Put(_ context.Context, key string, data []byte) error {
	p := c.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperror.New("objectstore.Put", apperror.KindObjectStore, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return apperror.New("objectstore.Put", apperror.KindObjectStore, err)
	}
	return nil
}

func (c *FileClient) Append(ctx context.Context, key string, data []byte) error {
	p := c.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperror.New("objectstore.Append", apperror.KindObjectStore, err)
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperror.New("objectstore.Append", apperror.KindObjectStore, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return apperror.New("objectstore.Append", apperror.KindObjectStore, err)
	}
	return nil
}

func (c *FileClient) Delete(_ context.Context, key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return apperror.New("objectstore.Delete", apperror.KindObjectStore, err)
	}
	return nil
}

func (c *FileClient) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	root := c.root
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.New("objectstore.List", apperror.KindObjectStore, err)
	}
	sort.Strings(out)
	return out, nil
}

var _ Client = (*FileClient)(nil)
