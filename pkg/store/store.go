// Package store keeps named canvas snapshots.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/ritzau/kube-playground/pkg/config"
)

var (
	ErrNotFound   = errors.New("snapshot not found")
	ErrInvalidKey = errors.New("invalid snapshot key")
)

// Store is a key-value store for serialized snapshots.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	// Load returns ErrNotFound when nothing is stored under key.
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// List returns the stored keys, sorted.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// ValidateKey accepts keys that are valid DNS-1123 subdomains, the same
// rule Kubernetes applies to object names.
func ValidateKey(key string) error {
	if msgs := validation.IsDNS1123Subdomain(key); len(msgs) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidKey, key, strings.Join(msgs, "; "))
	}
	return nil
}

// Open returns the store selected by cfg. The "none" backend yields a nil
// Store and no error.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Dir)
	case config.BackendRedis:
		return NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	case config.BackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
