/*
Package resolve implements the request-resolution dispatcher.

Resolve traverses a request tree: value leaves return their payload,
function requests compute — through the memory cache at memory/full
caching levels — and proxy requests (or whole trees, when the context
carries a proxy) are shipped to a remote peer.

For a cached function request the dispatcher acquires the AC record for
the request's captured identity and awaits its single-flight task. The
task resolves subrequests (concurrently between siblings), consults
secondary storage for fully-cached requests, invokes the function, and
publishes the result; write-back to secondary storage is fire-and-forget.

Asynchronous resolutions run on the async pool under a tree of Nodes
mirroring the request tree. Each node carries a status, a cancellation
signal polled at suspension points, and links to its children; the DB
locates nodes by id for the RPC surface. Retriers (default and proxy)
bound retry loops around fallible I/O with exponential backoff, and the
contained controller isolates a computation in a subprocess of the same
binary reached over RPC.
*/
package resolve
