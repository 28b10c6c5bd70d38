// Package backend defines where run journals are stored. Implementations
// register themselves by type name from an init function.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get when no record exists at the key.
var ErrNotFound = errors.New("journal record not found")

// Backend stores journal records as opaque blobs under slash-separated keys.
type Backend interface {
	// Type returns the registered backend type name.
	Type() string

	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	Type   string            `json:"type" yaml:"type"`
	Config map[string]string `json:"config" yaml:"config"`
}

// Factory builds a backend from its options.
type Factory func(config map[string]string) (Backend, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend type available to Create.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Create builds the backend named by config.Type.
func Create(config Config) (Backend, error) {
	mu.RLock()
	factory, ok := factories[config.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown journal backend %q (available: %v)", config.Type, Types())
	}
	opts := config.Config
	if opts == nil {
		opts = map[string]string{}
	}
	return factory(opts)
}

// Types lists the registered backend names.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Join prefixes key with prefix, skipping an empty prefix.
func Join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
