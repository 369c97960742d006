// Package resources assembles the shared service state of a CRADLE
// process: the memory cache, the secondary storage plugin, the blob-file
// directory, the uuid registry, the proxy registry and the concurrency
// pools. There are no process-global registries; a process conventionally
// holds one Resources, and tests instantiate independent ones.
package resources

import (
	"golang.org/x/sync/semaphore"

	"github.com/opencradle/cradle/pkg/blob"
	"github.com/opencradle/cradle/pkg/cache"
	"github.com/opencradle/cradle/pkg/config"
	"github.com/opencradle/cradle/pkg/metrics"
	"github.com/opencradle/cradle/pkg/remote"
	"github.com/opencradle/cradle/pkg/request"
	"github.com/opencradle/cradle/pkg/secondary"
)

// Resources owns the shared state of one service instance.
type Resources struct {
	Config config.Config

	// Cache is the memory cache; all mutation goes through its mutex.
	Cache *cache.Cache

	// Secondary is the configured storage plugin, nil when the service
	// runs memory-only.
	Secondary secondary.Storage

	// BlobDir allocates blob files, nil when blob_cache/directory is
	// not configured.
	BlobDir *blob.Directory

	// Registry maps uuids to request codecs.
	Registry *request.Registry

	// Proxies owns the named remote proxies.
	Proxies *remote.Registry

	// HTTPPool bounds concurrent blocking network I/O; AsyncPool bounds
	// concurrent root-level async resolutions.
	HTTPPool  *semaphore.Weighted
	AsyncPool *semaphore.Weighted
}

// New builds resources from a configuration.
func New(cfg config.Config) (*Resources, error) {
	metrics.Register()

	unusedLimit, err := cfg.NumberOrDefault(
		config.KeyMemoryCacheUnusedSizeLimit, config.DefaultUnusedSizeLimit)
	if err != nil {
		return nil, err
	}
	httpConc, err := cfg.NumberOrDefault(
		config.KeyHTTPConcurrency, config.DefaultHTTPConcurrency)
	if err != nil {
		return nil, err
	}
	asyncConc, err := cfg.NumberOrDefault(
		config.KeyAsyncConcurrency, config.DefaultAsyncConcurrency)
	if err != nil {
		return nil, err
	}

	r := &Resources{
		Config:    cfg,
		Cache:     cache.New(cache.Config{UnusedSizeLimit: unusedLimit}),
		Registry:  request.NewRegistry(),
		Proxies:   remote.NewRegistry(),
		HTTPPool:  semaphore.NewWeighted(int64(httpConc)),
		AsyncPool: semaphore.NewWeighted(int64(asyncConc)),
	}

	r.Secondary, err = secondary.CreateFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if dir, ok, derr := cfg.OptionalString(config.KeyBlobCacheDirectory); derr != nil {
		return nil, derr
	} else if ok {
		r.BlobDir, err = blob.NewDirectory(dir)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Close tears down owned resources.
func (r *Resources) Close() error {
	var firstErr error
	if c, ok := r.Secondary.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			firstErr = err
		}
	}
	return firstErr
}
