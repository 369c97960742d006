package secondary

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencradle/cradle/pkg/blob"
	"github.com/opencradle/cradle/pkg/config"
)

// Storage is a pluggable persistent key->blob store consulted on an
// action-cache miss for fully-cached requests. Keys are lowercase-hex
// SHA-256 strings derived from the request's captured identity; values are
// the serialized form of the computed result.
type Storage interface {
	// Name identifies the plugin.
	Name() string

	// Read returns the value for key, or ok=false when absent.
	Read(ctx context.Context, key string) (value blob.Blob, ok bool, err error)

	// Write stores the value for key.
	Write(ctx context.Context, key string, value blob.Blob) error

	// Clear empties the store.
	Clear() error

	// AllowBlobFiles reports whether stored blobs may alias blob files
	// (serialize by path) rather than carrying their bytes.
	AllowBlobFiles() bool
}

// Factory builds a storage plugin from the configuration.
type Factory func(cfg config.Config) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory installs a storage plugin factory under a name, chosen
// by the secondary_cache/factory configuration key.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// CreateFromConfig builds the configured storage plugin. Returns nil when
// no factory is configured: the cache then runs memory-only.
func CreateFromConfig(cfg config.Config) (Storage, error) {
	name, ok, err := cfg.OptionalString(config.KeySecondaryCacheFactory)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	factoriesMu.RLock()
	f, found := factories[name]
	factoriesMu.RUnlock()
	if !found {
		return nil, &config.Error{Msg: fmt.Sprintf("unknown secondary cache factory %q", name)}
	}
	return f(cfg)
}

func init() {
	RegisterFactory("memory", func(cfg config.Config) (Storage, error) {
		return NewMemory("memory", true), nil
	})
	RegisterFactory("bolt", NewBoltFromConfig)
	RegisterFactory("http", NewHTTPFromConfig)
}
