/*
Package blob provides byte sequences with pluggable ownership.

A Blob pairs a byte region with an Owner that keeps the bytes alive and
stable in address for as long as the blob is reachable. Concrete owners:

  - heap byte slices and strings (FromBytes, FromString)
  - static regions with no ownership (FromStatic)
  - memory-mapped blob files (FileReader, FileWriter)

Blobs compare by length and content, never by owner identity. File-backed
blobs serialize by (path, offset) reference instead of content, so large
payloads can cross process boundaries without copying; the Directory type
manages the blob_<id> file namespace those references point into.
*/
package blob
