/*
Package id provides stable structural identity and hashing.

The Interface type is anything usable as a cache key: it supports value
equality, a total order, a fast 64-bit hash for in-memory maps and a
SHA-256 hash for content-addressed keys. HashedID captures an ordered
argument sequence; UniqueHasher produces the cryptographic digests, with
type tags and aggregate sizes folded in so that values of different
shapes cannot collide.
*/
package id
