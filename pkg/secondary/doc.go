/*
Package secondary provides the pluggable key->blob stores consulted on an
action-cache miss.

Keys are lowercase-hex SHA-256 digests of captured request identities;
values are msgpack-serialized results. Plugins register a factory under a
name chosen by the secondary_cache/factory configuration key:

  - "memory": in-process map, for tests
  - "bolt":   local on-disk store (bbolt) with LRU trimming
  - "http":   CAS server reached over HTTP, typically on localhost

A plugin that allows blob files stores outer blobs as path references;
one that does not forces inline serialization.
*/
package secondary
