package deploycache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

var ErrNotExist = errors.New("cache document does not exist")

// Backend stores the serialized cache document.
type Backend interface {
	// Load returns ErrNotExist (possibly wrapped) when nothing was saved yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, doc []byte) error
	// Remove deletes the document and any storage created for it.
	Remove(ctx context.Context) error
	String() string
}

const (
	DefaultDirName  = ".deployscan"
	DefaultFileName = "deployments.json"
)

type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// DefaultFileBackend stores the cache in ~/.deployscan/deployments.json.
func DefaultFileBackend() (*FileBackend, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return NewFileBackend(filepath.Join(home, DefaultDirName, DefaultFileName)), nil
}

func (b *FileBackend) Path() string   { return b.path }
func (b *FileBackend) String() string { return "file:" + b.path }

func (b *FileBackend) Load(context.Context) ([]byte, error) {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, b.path)
	}
	return raw, err
}

func (b *FileBackend) Save(_ context.Context, doc []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// Remove deletes the document, then its directory if that is now empty.
func (b *FileBackend) Remove(context.Context) error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Remove(filepath.Dir(b.path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache dir: %w", err)
	}
	return nil
}

type RedisBackend struct {
	client redis.UniversalClient
	key    string
}

func NewRedisBackend(client redis.UniversalClient, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

func (b *RedisBackend) String() string { return "redis:" + b.key }

func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	raw, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, b.key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", b.key, err)
	}
	return raw, nil
}

func (b *RedisBackend) Save(ctx context.Context, doc []byte) error {
	if err := b.client.Set(ctx, b.key, doc, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", b.key, err)
	}
	return nil
}

func (b *RedisBackend) Remove(ctx context.Context) error {
	if err := b.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", b.key, err)
	}
	return nil
}
