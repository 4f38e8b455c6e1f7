/*
Package syncer replicates the transaction log between peers.

A node pulls from at most one parent and serves any number of approved
children. The pull session is a small state machine owned by the loop
goroutine:

	      ┌──────── Unstarted
	      ▼
	   Polling ──(none)──► Idle ──(tick)──► Polling
	      │
	      ├──(txn, blob local)──► Applying ──► Polling
	      │
	      └──(txn, blob remote)──► FetchingBlob ──(ok)──► Applying
	                                        │
	                                        └─(err, retry)─► FetchingBlob

Each iteration asks the parent for the transaction after the local
watermark, transfers the blob if it is not on disk yet, appends the
transaction with its timestamp reassigned to the local clock (id and
every other field preserved), and only then advances the watermark.
Recovery after any failure is therefore a plain retry.

Transient failures retry with bounded exponential backoff;
authorization, schema, and decode errors abort the cycle and surface.
Peer-facing reads (next-after, blob, diff) are pure functions of the
log, gated by the approved-children check.
*/
package syncer
