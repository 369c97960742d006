package remote

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/config"
)

// scriptedProxy serves a fixed status sequence for polling tests.
type scriptedProxy struct {
	statuses []async.Status
	idx      atomic.Int32
	errMsg   string
}

func (p *scriptedProxy) Name() string { return "scripted" }

func (p *scriptedProxy) GetAsyncStatus(ctx context.Context, aid async.ID) (async.Status, error) {
	i := int(p.idx.Add(1)) - 1
	if i >= len(p.statuses) {
		i = len(p.statuses) - 1
	}
	return p.statuses[i], nil
}

func (p *scriptedProxy) GetAsyncErrorMessage(ctx context.Context, aid async.ID) (string, error) {
	return p.errMsg, nil
}

func (p *scriptedProxy) ResolveSync(context.Context, config.Config, []byte) (SerializedResult, error) {
	return SerializedResult{}, nil
}
func (p *scriptedProxy) SubmitAsync(context.Context, config.Config, []byte) (async.ID, error) {
	return 1, nil
}
func (p *scriptedProxy) GetSubContexts(context.Context, async.ID) ([]SubContext, error) {
	return nil, nil
}
func (p *scriptedProxy) GetAsyncResponse(context.Context, async.ID) (SerializedResult, error) {
	return SerializedResult{}, nil
}
func (p *scriptedProxy) RequestCancellation(context.Context, async.ID) error { return nil }
func (p *scriptedProxy) FinishAsync(context.Context, async.ID) error         { return nil }
func (p *scriptedProxy) ReleaseCacheRecord(context.Context, int64) error     { return nil }

func TestWaitUntilFinished(t *testing.T) {
	p := &scriptedProxy{statuses: []async.Status{
		async.StatusCreated,
		async.StatusSubsRunning,
		async.StatusSelfRunning,
		async.StatusFinished,
	}}
	require.NoError(t, WaitUntilFinished(context.Background(), p, 1))
	assert.GreaterOrEqual(t, p.idx.Load(), int32(4))
}

func TestWaitTranslatesCancellation(t *testing.T) {
	p := &scriptedProxy{statuses: []async.Status{
		async.StatusSubsRunning,
		async.StatusCancelled,
	}}
	err := WaitUntilFinished(context.Background(), p, 1)
	var cancelled *async.CancelledError
	assert.ErrorAs(t, err, &cancelled)
}

func TestWaitTranslatesRemoteError(t *testing.T) {
	p := &scriptedProxy{
		statuses: []async.Status{async.StatusError},
		errMsg:   "boom on the peer",
	}
	err := WaitUntilFinished(context.Background(), p, 1)
	var asyncErr *async.Error
	require.ErrorAs(t, err, &asyncErr)
	assert.Contains(t, asyncErr.Msg, "boom")
}

func TestWaitHonorsContext(t *testing.T) {
	p := &scriptedProxy{statuses: []async.Status{async.StatusSubsRunning}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitUntilFinished(ctx, p, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	p := &scriptedProxy{statuses: []async.Status{async.StatusFinished}}
	r.Register(p)

	got, err := r.Find("scripted")
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, []string{"scripted"}, r.Names())

	_, err = r.Find("missing")
	var remErr *Error
	assert.ErrorAs(t, err, &remErr)
}
