package resolve

import (
	"sync"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/remote"
)

// DB tracks in-flight asynchronous resolutions so that RPC handlers can
// locate any node in any tree by id. Root entries additionally hold the
// resolution outcome once it is available.
type DB struct {
	mu    sync.Mutex
	seq   uint64
	nodes map[async.ID]*Node
	roots map[async.ID]*rootEntry
}

type rootEntry struct {
	node *Node
	done chan struct{}

	// valid after done is closed
	result remote.SerializedResult
	err    error
}

func NewDB() *DB {
	return &DB{
		nodes: make(map[async.ID]*Node),
		roots: make(map[async.ID]*rootEntry),
	}
}

func (db *DB) addNode(n *Node) async.ID {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seq++
	id := async.ID(db.seq)
	db.nodes[id] = n
	return id
}

// NewRoot creates the root node of a fresh resolution tree.
func (db *DB) NewRoot() *Node {
	n := newNode(db, nil, true)
	db.mu.Lock()
	db.roots[n.id] = &rootEntry{node: n, done: make(chan struct{})}
	db.mu.Unlock()
	return n
}

// NewChild creates a child node under parent.
func (db *DB) NewChild(parent *Node, isRequest bool) *Node {
	return newNode(db, parent, isRequest)
}

// FindNode locates any node by id.
func (db *DB) FindNode(id async.ID) (*Node, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	n, ok := db.nodes[id]
	if !ok {
		return nil, remote.Errorf("unknown async id %d", id)
	}
	return n, nil
}

func (db *DB) findRoot(id async.ID) (*rootEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.roots[id]
	if !ok {
		return nil, remote.Errorf("unknown async root id %d", id)
	}
	return e, nil
}

// setOutcome records the result of a root resolution and wakes waiters.
func (db *DB) setOutcome(rootID async.ID, result remote.SerializedResult, err error) {
	e, ferr := db.findRoot(rootID)
	if ferr != nil {
		return
	}
	e.result = result
	e.err = err
	close(e.done)
}

// Finish releases a resolution tree: the root entry and every node under
// it. Must be called even when the resolution failed.
func (db *DB) Finish(rootID async.ID) {
	e, err := db.findRoot(rootID)
	if err != nil {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.roots, rootID)
	var drop func(n *Node)
	drop = func(n *Node) {
		delete(db.nodes, n.id)
		for _, c := range n.children {
			drop(c)
		}
	}
	drop(e.node)
}
