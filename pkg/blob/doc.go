/*
Package blob provides the content-addressed, write-once payload store.

Every payload is written under a freshly minted 128-bit id. The on-disk
file name is the hex SHA-256 of the id string, which keeps the directory
flat and makes sharding by name prefix trivial if a deployment ever
needs it:

	<base>/blobs/<sha256(id)>    one file per blob, content bytes only

# Write semantics

Creation is failure-atomic: bytes land in a temp file in the same
directory, are fsynced, and are then linked into place with
exclusive-create semantics. A crash mid-write leaves only a temp file,
never a partial blob. Blobs are immutable once written; a second write
under an occupied id is refused rather than overwritten.

Replication uses Restore to write a payload under an id minted by the
origin node. Because blobs are immutable, restoring an id that is
already present is treated as success - a retried transfer race, not a
conflict.

Reads never mutate state. A missing file maps to the NotFound error
class, everything else to Storage.
*/
package blob
