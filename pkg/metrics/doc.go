/*
Package metrics exposes Prometheus collectors for the cache, the
dispatcher, secondary storage and the RPC server, plus the /metrics
handler serving them.
*/
package metrics
