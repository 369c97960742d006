package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencradle/cradle/pkg/id"
	"github.com/opencradle/cradle/pkg/value"
)

func key(args ...any) id.Interface {
	return id.NewHashedID(args...)
}

// producing creates a task factory whose task publishes v for its key and
// counts factory invocations.
func producing(c *Cache, v any, created *atomic.Int32) CreateTaskFunc {
	return func(k id.Interface) *SharedTask {
		if created != nil {
			created.Add(1)
		}
		return NewSharedTask(func() (any, error) {
			c.RecordValue(k, v)
			return v, nil
		})
	}
}

// checkEvictionAccounting asserts the core invariant: the eviction list
// total equals the sum of sizes of listed Ready records.
func checkEvictionAccounting(t *testing.T, c *Cache) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var want uint64
	for e := c.evictionList.Front(); e != nil; e = e.Next() {
		r := e.Value.(*record)
		assert.Zero(t, r.refCount)
		assert.Zero(t, r.lockCount)
		if r.state == Ready {
			want += r.size
		}
	}
	assert.Equal(t, want, c.evictionTotal)
	// iterator-membership <=> refcount duality over all records
	for _, bucket := range c.records {
		for _, r := range bucket {
			inList := r.evictionElem != nil
			assert.Equal(t, r.refCount == 0 && r.lockCount == 0, inList)
		}
	}
}

func TestAcquireComputeRelease(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 1 << 20})
	ctx := context.Background()

	ptr := c.Acquire(key("add", 2, 3), producing(c, int64(5), nil))
	v, err := ptr.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, Ready, ptr.State())

	info := c.GetSummaryInfo()
	assert.Equal(t, 1, info.AcNumRecords)
	assert.Equal(t, 1, info.AcNumRecordsInUse)
	assert.Equal(t, 1, info.CasNumRecords)
	checkEvictionAccounting(t, c)

	ptr.Release()
	ptr.Release() // idempotent

	info = c.GetSummaryInfo()
	assert.Equal(t, 1, info.AcNumRecords)
	assert.Equal(t, 0, info.AcNumRecordsInUse)
	assert.Equal(t, 1, info.AcNumRecordsPendingEviction)
	checkEvictionAccounting(t, c)

	// Re-acquire finds the Ready record without a new task.
	var created atomic.Int32
	ptr2 := c.Acquire(key("add", 2, 3), producing(c, int64(5), &created))
	defer ptr2.Release()
	v2, ok := ptr2.Value()
	assert.True(t, ok)
	assert.Equal(t, int64(5), v2)
	assert.Zero(t, created.Load())
	checkEvictionAccounting(t, c)
}

func TestSingleFlight(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 1 << 20})
	ctx := context.Background()

	var created, ran atomic.Int32
	gate := make(chan struct{})
	create := func(k id.Interface) *SharedTask {
		created.Add(1)
		return NewSharedTask(func() (any, error) {
			<-gate
			ran.Add(1)
			c.RecordValue(k, int64(7))
			return int64(7), nil
		})
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]any, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ptr := c.Acquire(key("k"), create)
			defer ptr.Release()
			v, err := ptr.Await(ctx)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(1), ran.Load())
	for _, v := range results {
		assert.Equal(t, int64(7), v)
	}
	assert.Equal(t, 1, c.GetSummaryInfo().AcNumRecords)
	checkEvictionAccounting(t, c)
}

func TestCASSharing(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 1 << 20})
	ctx := context.Background()

	// Two distinct actions computing the same value share one CAS record.
	p1 := c.Acquire(key("f", 2, 3), producing(c, int64(5), nil))
	p2 := c.Acquire(key("g", 1, 4), producing(c, int64(5), nil))
	defer p1.Release()
	defer p2.Release()

	_, err := p1.Await(ctx)
	require.NoError(t, err)
	_, err = p2.Await(ctx)
	require.NoError(t, err)

	info := c.GetSummaryInfo()
	assert.Equal(t, 2, info.AcNumRecords)
	assert.Equal(t, 1, info.CasNumRecords)
	assert.Equal(t, value.DeepSize(int64(5)), info.CasTotalSize)
	checkEvictionAccounting(t, c)
}

func TestFailureRetry(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 1 << 20})
	ctx := context.Background()

	var calls atomic.Int32
	create := func(k id.Interface) *SharedTask {
		return NewSharedTask(func() (any, error) {
			if calls.Add(1) == 1 {
				c.RecordFailure(k)
				return nil, assert.AnError
			}
			c.RecordValue(k, int64(7))
			return int64(7), nil
		})
	}

	p1 := c.Acquire(key("flaky"), create)
	_, err := p1.Await(ctx)
	require.Error(t, err)
	assert.Equal(t, Failed, p1.State())
	p1.Release()
	checkEvictionAccounting(t, c)

	// The next acquire rebuilds the task and succeeds.
	p2 := c.Acquire(key("flaky"), create)
	defer p2.Release()
	v, err := p2.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, int32(2), calls.Load())
	checkEvictionAccounting(t, c)
}

func TestZeroLimitEvictsImmediately(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 0})
	ctx := context.Background()

	ptr := c.Acquire(key("k"), producing(c, int64(5), nil))
	_, err := ptr.Await(ctx)
	require.NoError(t, err)
	ptr.Release()

	info := c.GetSummaryInfo()
	assert.Zero(t, info.AcNumRecords)
	assert.Zero(t, info.CasNumRecords)
	assert.Zero(t, info.CasTotalSize)
	checkEvictionAccounting(t, c)
}

func TestLRUEvictionOrder(t *testing.T) {
	// Three 4-byte string values; room for two unused entries.
	v1, v2, v3 := "aaaa", "bbbb", "cccc"
	size := value.DeepSize(v1)
	c := New(Config{UnusedSizeLimit: 2 * size})
	ctx := context.Background()

	for i, v := range []string{v1, v2, v3} {
		ptr := c.Acquire(key("k", i), producing(c, v, nil))
		_, err := ptr.Await(ctx)
		require.NoError(t, err)
		ptr.Release()
		checkEvictionAccounting(t, c)
	}

	// v1 was evicted; the list holds v2 (front) then v3 (back).
	c.mu.Lock()
	require.Equal(t, 2, c.evictionList.Len())
	front := c.evictionList.Front().Value.(*record)
	back := c.evictionList.Back().Value.(*record)
	assert.True(t, front.key.Equals(key("k", 1)))
	assert.True(t, back.key.Equals(key("k", 2)))
	c.mu.Unlock()

	_, ok := c.GetValue(key("k", 0))
	assert.False(t, ok)
	_, ok = c.GetValue(key("k", 1))
	assert.True(t, ok)
}

func TestReducingLimitEvictsDeterministically(t *testing.T) {
	v := "aaaa"
	size := value.DeepSize(v)
	c := New(Config{UnusedSizeLimit: 3 * size})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ptr := c.Acquire(key("k", i), producing(c, v, nil))
		_, err := ptr.Await(ctx)
		require.NoError(t, err)
		ptr.Release()
	}
	require.Equal(t, 3, c.GetSummaryInfo().AcNumRecords)

	// Shrinking the budget below the current total evicts in LRU order.
	c.mu.Lock()
	c.config.UnusedSizeLimit = size
	c.reduceNoLock(c.config.UnusedSizeLimit)
	c.mu.Unlock()

	_, ok := c.GetValue(key("k", 0))
	assert.False(t, ok)
	_, ok = c.GetValue(key("k", 1))
	assert.False(t, ok)
	_, ok = c.GetValue(key("k", 2))
	assert.True(t, ok)
	checkEvictionAccounting(t, c)
}

func TestLockPinsRecord(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 0})
	ctx := context.Background()

	ptr := c.Acquire(key("pinned"), producing(c, int64(1), nil))
	_, err := ptr.Await(ctx)
	require.NoError(t, err)

	lock := ptr.Lock()
	ptr.Release()

	// The lock outlives the pointer: no eviction despite the zero limit.
	_, ok := c.GetValue(key("pinned"))
	assert.True(t, ok)
	checkEvictionAccounting(t, c)

	lock.Release()
	_, ok = c.GetValue(key("pinned"))
	assert.False(t, ok)
	checkEvictionAccounting(t, c)
}

func TestClearUnused(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 1 << 20})
	ctx := context.Background()

	held := c.Acquire(key("held"), producing(c, int64(1), nil))
	_, err := held.Await(ctx)
	require.NoError(t, err)

	dropped := c.Acquire(key("dropped"), producing(c, int64(2), nil))
	_, err = dropped.Await(ctx)
	require.NoError(t, err)
	dropped.Release()

	c.ClearUnused()

	info := c.GetSummaryInfo()
	assert.Equal(t, 1, info.AcNumRecords)
	assert.Equal(t, 1, info.AcNumRecordsInUse)
	_, ok := c.GetValue(key("dropped"))
	assert.False(t, ok)
	held.Release()
	checkEvictionAccounting(t, c)
}

func TestSnapshotBins(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 1 << 20})
	ctx := context.Background()

	inUse := c.Acquire(key("a"), producing(c, int64(1), nil))
	_, err := inUse.Await(ctx)
	require.NoError(t, err)
	defer inUse.Release()

	pending := c.Acquire(key("b"), producing(c, int64(2), nil))
	_, err = pending.Await(ctx)
	require.NoError(t, err)
	pending.Release()

	snap := c.GetSnapshot()
	require.Len(t, snap.InUse, 1)
	require.Len(t, snap.PendingEviction, 1)
	assert.Equal(t, Ready, snap.InUse[0].State)
	assert.Equal(t, id.UniqueString(key("a")), snap.InUse[0].Key)
	assert.Equal(t, id.UniqueString(key("b")), snap.PendingEviction[0].Key)
	assert.Equal(t, snap.CasTotalSize, c.GetSummaryInfo().CasTotalSize)
}

func TestReset(t *testing.T) {
	c := New(Config{UnusedSizeLimit: 1 << 20})
	ctx := context.Background()

	ptr := c.Acquire(key("x"), producing(c, int64(1), nil))
	_, err := ptr.Await(ctx)
	require.NoError(t, err)
	ptr.Release()

	c.Reset(Config{UnusedSizeLimit: 64})
	info := c.GetSummaryInfo()
	assert.Zero(t, info.AcNumRecords)
	assert.Zero(t, info.CasNumRecords)
	checkEvictionAccounting(t, c)
}
