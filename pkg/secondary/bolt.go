package secondary

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/opencradle/cradle/pkg/blob"
	"github.com/opencradle/cradle/pkg/config"
	"github.com/opencradle/cradle/pkg/log"
)

var (
	bucketValues = []byte("values")
	bucketIndex  = []byte("index")
)

const defaultBoltSizeLimit = uint64(4) << 30 // 4 GiB

// Bolt is the local on-disk storage plugin: a bbolt database holding the
// serialized values plus an access index driving LRU trimming against the
// configured size limit.
type Bolt struct {
	db        *bolt.DB
	path      string
	sizeLimit uint64
}

// NewBoltFromConfig opens (or creates) the database under
// disk_cache/directory, honoring disk_cache/size_limit.
func NewBoltFromConfig(cfg config.Config) (Storage, error) {
	dir, err := cfg.MandatoryString(config.KeyDiskCacheDirectory)
	if err != nil {
		return nil, err
	}
	limit, err := cfg.NumberOrDefault(config.KeyDiskCacheSizeLimit, defaultBoltSizeLimit)
	if err != nil {
		return nil, err
	}
	return NewBolt(dir, limit)
}

// NewBolt opens the store in the given directory with the given byte
// budget for stored values.
func NewBolt(dir string, sizeLimit uint64) (*Bolt, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create disk cache directory: %w", err)
	}
	path := filepath.Join(dir, "cradle.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk cache database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketValues, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db, path: path, sizeLimit: sizeLimit}, nil
}

func (s *Bolt) Name() string {
	return "bolt"
}

func (s *Bolt) AllowBlobFiles() bool {
	return true
}

// indexEntry is the per-key LRU bookkeeping: a monotonically increasing
// access stamp and the payload size.
type indexEntry struct {
	stamp uint64
	size  uint64
}

func encodeIndexEntry(e indexEntry) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], e.stamp)
	binary.BigEndian.PutUint64(buf[8:], e.size)
	return buf[:]
}

func decodeIndexEntry(p []byte) indexEntry {
	if len(p) != 16 {
		return indexEntry{}
	}
	return indexEntry{
		stamp: binary.BigEndian.Uint64(p[:8]),
		size:  binary.BigEndian.Uint64(p[8:]),
	}
}

func (s *Bolt) Read(ctx context.Context, key string) (blob.Blob, bool, error) {
	if err := ctx.Err(); err != nil {
		return blob.Blob{}, false, err
	}
	var out []byte
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		values := tx.Bucket(bucketValues)
		data := values.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		out = append(out, data...)
		index := tx.Bucket(bucketIndex)
		stamp, err := index.NextSequence()
		if err != nil {
			return err
		}
		return index.Put([]byte(key),
			encodeIndexEntry(indexEntry{stamp: stamp, size: uint64(len(data))}))
	})
	if err != nil {
		return blob.Blob{}, false, fmt.Errorf("disk cache read failed: %w", err)
	}
	if !found {
		return blob.Blob{}, false, nil
	}
	return blob.FromBytes(out), true, nil
}

func (s *Bolt) Write(ctx context.Context, key string, value blob.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		values := tx.Bucket(bucketValues)
		index := tx.Bucket(bucketIndex)
		if err := values.Put([]byte(key), value.Bytes()); err != nil {
			return err
		}
		stamp, err := index.NextSequence()
		if err != nil {
			return err
		}
		if err := index.Put([]byte(key),
			encodeIndexEntry(indexEntry{stamp: stamp, size: uint64(value.Size())})); err != nil {
			return err
		}
		return s.trim(tx)
	})
	if err != nil {
		return fmt.Errorf("disk cache write failed: %w", err)
	}
	return nil
}

// trim evicts least-recently-used entries until the stored payload bytes
// fit the size limit.
func (s *Bolt) trim(tx *bolt.Tx) error {
	index := tx.Bucket(bucketIndex)
	values := tx.Bucket(bucketValues)

	type entry struct {
		key []byte
		indexEntry
	}
	var entries []entry
	var total uint64
	err := index.ForEach(func(k, v []byte) error {
		e := entry{key: append([]byte(nil), k...), indexEntry: decodeIndexEntry(v)}
		entries = append(entries, e)
		total += e.size
		return nil
	})
	if err != nil {
		return err
	}
	if total <= s.sizeLimit {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].stamp < entries[j].stamp
	})
	for _, e := range entries {
		if total <= s.sizeLimit {
			break
		}
		if err := values.Delete(e.key); err != nil {
			return err
		}
		if err := index.Delete(e.key); err != nil {
			return err
		}
		total -= e.size
		lg := log.WithComponent("secondary")
		lg.Debug().
			Str("key", string(e.key)).
			Msg("disk cache entry evicted")
	}
	return nil
}

func (s *Bolt) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketValues, bucketIndex} {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *Bolt) Close() error {
	return s.db.Close()
}
