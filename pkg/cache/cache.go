package cache

import (
	"container/list"
	"sort"
	"sync"

	"github.com/opencradle/cradle/pkg/id"
	"github.com/opencradle/cradle/pkg/log"
	"github.com/opencradle/cradle/pkg/metrics"
	"github.com/opencradle/cradle/pkg/value"
)

// Config configures the memory cache.
type Config struct {
	// UnusedSizeLimit is the maximum number of bytes spent on results
	// that are no longer in use.
	UnusedSizeLimit uint64
}

// State is the lifecycle state of an AC record.
type State int

const (
	// Loading: the value is somewhere in the process of being computed
	// or retrieved; it will transition to Ready without further
	// intervention.
	Loading State = iota
	// Ready: the value is available.
	Ready
	// Failed: the computation failed; the next acquire retries.
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CreateTaskFunc builds the single-flight task resolving the value for a
// key. It is invoked while the cache mutex is held, so it must only
// construct the task, never run it or touch the cache.
type CreateTaskFunc func(key id.Interface) *SharedTask

// record is an entry in the Action Cache.
//
// key and owner stay constant for the life of the record; everything else
// is protected by the cache mutex.
type record struct {
	owner *Cache
	key   id.Interface

	// refCount counts live Ptrs; lockCount counts explicit pins that
	// outlive any Ptr. The record sits in the eviction list iff both
	// are zero, and then evictionElem is its list element.
	refCount     int
	lockCount    int
	evictionElem *list.Element

	state State
	size  uint64
	task  *SharedTask
	cas   *casRecord
}

// casRecord is an entry in the content-addressable store. refCount counts
// AC records referencing it.
type casRecord struct {
	digest   [id.Size]byte
	deepSize uint64
	refCount int
	value    any
}

// Cache is the two-level immutable memory cache: an Action Cache keyed by
// captured request identity over a Content-Addressable Store keyed by
// value digest. One mutex protects all mutable state; value computations
// run outside it.
type Cache struct {
	mu     sync.Mutex
	config Config

	// AC records bucketed by the key's fast hash; collisions resolve
	// through key equality.
	records    map[uint64][]*record
	numRecords int

	// Records with no refs and no locks, LRU order (front = oldest).
	evictionList *list.List
	// Sum of sizes of listed records whose state is Ready.
	evictionTotal uint64

	cas      map[[id.Size]byte]*casRecord
	casTotal uint64
}

// New creates a cache with the given config.
func New(cfg Config) *Cache {
	c := &Cache{}
	c.resetNoLock(cfg)
	return c
}

func (c *Cache) resetNoLock(cfg Config) {
	c.config = cfg
	c.records = make(map[uint64][]*record)
	c.numRecords = 0
	c.evictionList = list.New()
	c.evictionTotal = 0
	c.cas = make(map[[id.Size]byte]*casRecord)
	c.casTotal = 0
}

// Reset clears the cache and applies a new config.
func (c *Cache) Reset(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetNoLock(cfg)
	c.publishMetrics()
}

func (c *Cache) findNoLock(key id.Interface) *record {
	for _, r := range c.records[key.Hash()] {
		if r.key.Equals(key) {
			return r
		}
	}
	return nil
}

func (c *Cache) removeRecordNoLock(r *record) {
	h := r.key.Hash()
	bucket := c.records[h]
	for i, cand := range bucket {
		if cand == r {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.records, h)
	} else {
		c.records[h] = bucket
	}
	c.numRecords--
}

// Acquire returns a pointer to the AC record for key, creating the record
// and its single-flight task on first acquisition. A record in Failed
// state is given a fresh task (retry). The returned Ptr must be released.
func (c *Cache) Acquire(key id.Interface, create CreateTaskFunc) *Ptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.findNoLock(key)
	if r == nil {
		r = &record{
			owner: c,
			key:   key,
			state: Loading,
			task:  create(key),
		}
		h := key.Hash()
		c.records[h] = append(c.records[h], r)
		c.numRecords++
	}
	if r.state == Failed {
		r.task = create(r.key)
		r.state = Loading
	}
	r.refCount++
	if r.evictionElem != nil {
		c.removeFromEvictionListNoLock(r)
	}
	c.publishMetrics()
	return &Ptr{rec: r}
}

func (c *Cache) removeFromEvictionListNoLock(r *record) {
	c.evictionList.Remove(r.evictionElem)
	r.evictionElem = nil
	if r.state == Ready {
		c.evictionTotal -= r.size
	}
}

func (c *Cache) addToEvictionListNoLock(r *record) {
	r.evictionElem = c.evictionList.PushBack(r)
	// A Loading record has size 0; the total is updated on its
	// Loading -> Ready transition.
	if r.state == Ready {
		c.evictionTotal += r.size
	}
}

func (c *Cache) release(r *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.refCount--
	if r.refCount == 0 && r.lockCount == 0 {
		c.addToEvictionListNoLock(r)
		c.reduceNoLock(c.config.UnusedSizeLimit)
	}
	c.publishMetrics()
}

func (c *Cache) addLock(r *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.lockCount++
	if r.evictionElem != nil {
		c.removeFromEvictionListNoLock(r)
	}
	c.publishMetrics()
}

func (c *Cache) releaseLock(r *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.lockCount--
	if r.refCount == 0 && r.lockCount == 0 {
		c.addToEvictionListNoLock(r)
		c.reduceNoLock(c.config.UnusedSizeLimit)
	}
	c.publishMetrics()
}

// reduceNoLock evicts unused records in LRU order until the total size of
// unused Ready records is at most desired.
func (c *Cache) reduceNoLock(desired uint64) {
	for c.evictionList.Len() > 0 && c.evictionTotal > desired {
		front := c.evictionList.Front()
		r := front.Value.(*record)
		c.evictionList.Remove(front)
		r.evictionElem = nil
		if r.state == Ready {
			c.evictionTotal -= r.size
		}
		c.removeRecordNoLock(r)
		if r.cas != nil {
			c.delCASRefNoLock(r.cas)
			r.cas = nil
		}
		metrics.CacheEvictions.Inc()
	}
}

func (c *Cache) delCASRefNoLock(cr *casRecord) {
	cr.refCount--
	if cr.refCount == 0 {
		delete(c.cas, cr.digest)
		c.casTotal -= cr.deepSize
	}
}

// AcquireExisting returns a pointer to the record for key if one exists,
// without creating one. Used to pin an already-resolved record.
func (c *Cache) AcquireExisting(key id.Interface) *Ptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.findNoLock(key)
	if r == nil {
		return nil
	}
	r.refCount++
	if r.evictionElem != nil {
		c.removeFromEvictionListNoLock(r)
	}
	c.publishMetrics()
	return &Ptr{rec: r}
}

// RecordValue publishes the value computed for key: the CAS record is
// found or created by digest, the AC record is linked to it, and the AC
// record transitions Loading -> Ready.
func (c *Cache) RecordValue(key id.Interface, v any) {
	digest := value.Digest(v)
	size := value.DeepSize(v)
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.findNoLock(key)
	if r == nil {
		// The record was evicted while the task ran; nothing to link.
		return
	}
	if r.state != Loading {
		lg := log.WithComponent("cache")
		lg.Warn().
			Str("state", r.state.String()).
			Msg("recording value on a record that is not loading")
	}
	cr, ok := c.cas[digest]
	if ok {
		cr.refCount++
	} else {
		cr = &casRecord{digest: digest, deepSize: size, refCount: 1, value: v}
		c.cas[digest] = cr
		c.casTotal += size
	}
	r.cas = cr
	r.size = size
	r.state = Ready
	if r.evictionElem != nil {
		c.evictionTotal += size
	}
	c.publishMetrics()
}

// RecordFailure marks the record Failed. No CAS record is linked; the
// next Acquire for the key rebuilds the task.
func (c *Cache) RecordFailure(key id.Interface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r := c.findNoLock(key); r != nil {
		r.state = Failed
	}
	c.publishMetrics()
}

// GetValue returns the cached value for key if its record is Ready.
func (c *Cache) GetValue(key id.Interface) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.findNoLock(key)
	if r == nil || r.state != Ready || r.cas == nil {
		return nil, false
	}
	return r.cas.value, true
}

// ClearUnused evicts every record on the eviction list.
func (c *Cache) ClearUnused() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.evictionList.Len() > 0 {
		front := c.evictionList.Front()
		r := front.Value.(*record)
		c.evictionList.Remove(front)
		r.evictionElem = nil
		if r.state == Ready {
			c.evictionTotal -= r.size
		}
		c.removeRecordNoLock(r)
		if r.cas != nil {
			c.delCASRefNoLock(r.cas)
			r.cas = nil
		}
	}
	c.publishMetrics()
}

// EntrySnapshot describes one AC record.
type EntrySnapshot struct {
	// Key is the record key's unique-hash string.
	Key   string
	State State
	// Size of the cached data; valid when Ready, 0 otherwise.
	Size uint64
}

// Snapshot describes the AC and CAS contents at one instant.
type Snapshot struct {
	InUse           []EntrySnapshot
	PendingEviction []EntrySnapshot
	// CasTotalSize is the total deep size of the values in the CAS.
	CasTotalSize uint64
}

// GetSnapshot captures the cache contents. O(n) under the mutex.
func (c *Cache) GetSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var snap Snapshot
	for _, bucket := range c.records {
		for _, r := range bucket {
			e := EntrySnapshot{Key: id.UniqueString(r.key), State: r.state}
			if r.state == Ready {
				e.Size = r.size
			}
			if r.evictionElem != nil {
				snap.PendingEviction = append(snap.PendingEviction, e)
			} else {
				snap.InUse = append(snap.InUse, e)
			}
		}
	}
	sort.Slice(snap.InUse, func(i, j int) bool {
		return snap.InUse[i].Key < snap.InUse[j].Key
	})
	sort.Slice(snap.PendingEviction, func(i, j int) bool {
		return snap.PendingEviction[i].Key < snap.PendingEviction[j].Key
	})
	snap.CasTotalSize = c.casTotal
	return snap
}

// Info summarizes the cache contents.
type Info struct {
	AcNumRecords                int
	AcNumRecordsInUse           int
	AcNumRecordsPendingEviction int
	CasNumRecords               int
	CasTotalSize                uint64
}

// GetSummaryInfo computes summary counts. O(n) under the mutex.
func (c *Cache) GetSummaryInfo() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.infoNoLock()
}

func (c *Cache) infoNoLock() Info {
	info := Info{
		AcNumRecords:  c.numRecords,
		CasNumRecords: len(c.cas),
		CasTotalSize:  c.casTotal,
	}
	info.AcNumRecordsPendingEviction = c.evictionList.Len()
	info.AcNumRecordsInUse = c.numRecords - info.AcNumRecordsPendingEviction
	return info
}

func (c *Cache) publishMetrics() {
	info := c.infoNoLock()
	metrics.UpdateCacheInfo(
		info.AcNumRecords,
		info.AcNumRecordsInUse,
		info.AcNumRecordsPendingEviction,
		info.CasNumRecords,
		info.CasTotalSize,
	)
}
