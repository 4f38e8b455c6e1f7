/*
Package metastore persists the relational state of the engine in a
single SQLite database.

Four tables live in <base>/database.db:

	transactions(id, data_type, action, blob_id, alt_key, timestamp)
	forms(blob_id, team, match_number, event_key, template)
	watermarks(owner_id, transaction_id)
	blobs(owner_id, blob_id)                  -- needed-blobs set

The transactions table is the only source of truth for current state:
for a given (data_type, alt_key) the row with the maximum timestamp
decides whether the entity is live or tombstoned. The forms table is a
materialized cache over live form versions and is rebuildable from the
log and blobs alone; its queries join back to the transactions table so
a tombstoned form can never leak out of a filter even if its row was
not removed eagerly.

All mutations go through database/sql's pool. Multi-statement mutations
(a log append together with a forms upsert, the watermark
delete-then-insert) run inside one database transaction via WithTx; the
Execer interface lets every statement run either on the pool or inside
such a transaction. The database is opened in WAL mode so readers do
not block the single writer.
*/
package metastore
