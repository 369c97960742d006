/*
Package request defines the computation model: tree-structured requests
over typed arguments.

A request is one of three kinds. A Value request is a leaf carrying a
literal. A Function request applies a pure function to the resolved values
of its ordered subrequests. A Proxy request stands in for a request whose
implementation lives on a remote peer.

Every serializable request class carries a Uuid identifying the class and
its function binding; the uuid is extended with the caching level at
construction. The Registry maps uuids to codec entries and enforces the
bijection between uuids and request classes; a Catalog groups the
registrations of one plugin so they can be retired together.

Requests serialize to canonical JSON keyed by the "uuid" field, which
drives polymorphic dispatch on load. A request's captured identity — the
action-cache key — covers its effective uuid and all argument identities.
*/
package request
