// Package loopback provides a remote proxy that short-circuits to the
// local dispatcher: requests "shipped" to it resolve in the same process,
// against the same resources. It gives tests and single-process setups
// the full proxy surface without a network.
package loopback

import (
	"context"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/config"
	"github.com/opencradle/cradle/pkg/remote"
	"github.com/opencradle/cradle/pkg/resolve"
	"github.com/opencradle/cradle/pkg/resources"
)

// Proxy resolves serialized requests against the local service.
type Proxy struct {
	res   *resources.Resources
	db    *resolve.DB
	locks *resolve.LockRegistry
}

func New(res *resources.Resources) *Proxy {
	return &Proxy{
		res:   res,
		db:    resolve.NewDB(),
		locks: resolve.NewLockRegistry(),
	}
}

func (p *Proxy) Name() string {
	return "loopback"
}

// DB exposes the async database, for tests inspecting node trees.
func (p *Proxy) DB() *resolve.DB {
	return p.db
}

func (p *Proxy) rctx() *resolve.Context {
	return &resolve.Context{
		Res:     p.res,
		Retrier: resolve.DefaultRetrier{},
	}
}

func (p *Proxy) ResolveSync(ctx context.Context, cfg config.Config, seriReq []byte) (remote.SerializedResult, error) {
	data, lock, err := resolve.ResolveSerialized(ctx, p.rctx(), seriReq, false)
	if err != nil {
		return remote.SerializedResult{}, err
	}
	return remote.SerializedResult{Data: data, RecordID: p.locks.Add(lock)}, nil
}

func (p *Proxy) SubmitAsync(ctx context.Context, cfg config.Config, seriReq []byte) (async.ID, error) {
	return resolve.SubmitSerialized(p.rctx(), p.db, seriReq, false, p.locks.Add)
}

func (p *Proxy) GetSubContexts(ctx context.Context, aid async.ID) ([]remote.SubContext, error) {
	node, err := p.db.FindNode(aid)
	if err != nil {
		return nil, err
	}
	var subs []remote.SubContext
	for _, ch := range node.Children() {
		subs = append(subs, remote.SubContext{ID: ch.ID(), IsRequest: ch.IsRequest()})
	}
	return subs, nil
}

func (p *Proxy) GetAsyncStatus(ctx context.Context, aid async.ID) (async.Status, error) {
	node, err := p.db.FindNode(aid)
	if err != nil {
		return 0, err
	}
	return node.Status(), nil
}

func (p *Proxy) GetAsyncErrorMessage(ctx context.Context, aid async.ID) (string, error) {
	node, err := p.db.FindNode(aid)
	if err != nil {
		return "", err
	}
	return node.ErrorMessage(), nil
}

func (p *Proxy) GetAsyncResponse(ctx context.Context, rootID async.ID) (remote.SerializedResult, error) {
	return p.db.AwaitResult(ctx, rootID)
}

func (p *Proxy) RequestCancellation(ctx context.Context, aid async.ID) error {
	node, err := p.db.FindNode(aid)
	if err != nil {
		return err
	}
	node.RequestCancellation()
	return nil
}

func (p *Proxy) FinishAsync(ctx context.Context, rootID async.ID) error {
	p.db.Finish(rootID)
	return nil
}

func (p *Proxy) ReleaseCacheRecord(ctx context.Context, recordID int64) error {
	return p.locks.Release(recordID)
}

var _ remote.Proxy = (*Proxy)(nil)
