package resolve

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/opencradle/cradle/pkg/async"
)

// Node is one position in an asynchronous context tree mirroring a request
// tree. It carries the node's status, its cancellation signal and links to
// its parent and children.
type Node struct {
	id     async.ID
	db     *DB
	parent *Node
	isReq  bool

	ctx    context.Context
	cancel context.CancelFunc

	cancelRequested atomic.Bool

	mu       sync.Mutex
	status   async.Status
	errMsg   string
	children []*Node
}

func newNode(db *DB, parent *Node, isReq bool) *Node {
	n := &Node{
		db:     db,
		parent: parent,
		isReq:  isReq,
		status: async.StatusCreated,
	}
	base := context.Background()
	if parent != nil {
		base = parent.ctx
	}
	n.ctx, n.cancel = context.WithCancel(base)
	n.id = db.addNode(n)
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, n)
		parent.mu.Unlock()
	}
	return n
}

// ID returns the node's id, unique within its DB.
func (n *Node) ID() async.ID {
	return n.id
}

// Context returns the Go context carrying this node's cancellation signal.
// User functions receive it and are expected to poll it at await points.
func (n *Node) Context() context.Context {
	return n.ctx
}

// IsRequest reports whether this node mirrors a subrequest (true) or a
// plain value argument (false).
func (n *Node) IsRequest() bool {
	return n.isReq
}

// Children returns the node's children in creation order.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Status returns the node's current status.
func (n *Node) Status() async.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// ErrorMessage returns the captured failure message; valid when the
// status is ERROR.
func (n *Node) ErrorMessage() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errMsg
}

// setStatus applies a transition; final statuses are sticky.
func (n *Node) setStatus(s async.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status.Final() {
		return
	}
	n.status = s
}

func (n *Node) setError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status.Final() {
		return
	}
	n.status = async.StatusError
	n.errMsg = msg
}

// RequestCancellation sets the cancellation flag on this node and all its
// descendants and fires their cancellation signals. Cooperative code
// observes the signal at its next suspension point.
func (n *Node) RequestCancellation() {
	n.cancelRequested.Store(true)
	n.cancel()
	for _, c := range n.Children() {
		c.RequestCancellation()
	}
}

// CancelRequested reports whether cancellation has been requested for
// this node (directly or through an ancestor).
func (n *Node) CancelRequested() bool {
	return n != nil && n.cancelRequested.Load()
}

// checkCancelled is polled at suspension points.
func (n *Node) checkCancelled() error {
	if n == nil {
		return nil
	}
	if n.CancelRequested() {
		return &async.CancelledError{}
	}
	return nil
}
