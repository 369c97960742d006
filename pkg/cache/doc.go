/*
Package cache implements the two-level immutable memory cache.

The cache has two subcaches: the Action Cache (AC) and the
Content-Addressable Store (CAS). An action corresponds to resolving a
request; AC records are keyed by the captured identity that uniquely
describes a request. The CAS stores result values keyed by a SHA-256
digest over the value, so two different requests producing equal values
share one CAS record.

An AC record holds a single-flight SharedTask and, once that task has run,
a reference to a CAS record. The shared task acts as a rendezvous for
clients interested in the same request at the same time: all of them await
the same task, but it runs only once.

Records that are no longer referenced (no Ptr, no Lock) queue on an LRU
eviction list. When the total size of unused ready records exceeds the
configured limit, records are evicted from the front of the list; a CAS
record disappears when its last AC referent does.

A single mutex protects all mutable state. Task construction happens under
the mutex and must be pure; task execution happens outside it.
*/
package cache
