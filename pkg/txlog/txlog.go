package txlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CCShambots/5907-scouting-api/pkg/log"
	"github.com/CCShambots/5907-scouting-api/pkg/metastore"
	"github.com/CCShambots/5907-scouting-api/pkg/metrics"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Log is the append-only record of mutations. It owns the node's
// microsecond clock: timestamps are strictly increasing within a node's
// writes, including transactions received from peers, whose timestamps
// are reassigned here at insertion.
type Log struct {
	store  *metastore.Store
	logger zerolog.Logger

	clockMu sync.Mutex
	last    int64

	mirrorMu sync.Mutex
	mirror   *os.File
}

// Open builds the log over the metastore, seeding the clock from the
// newest persisted timestamp so monotonicity survives restarts. When
// mirror is true a newline-delimited JSON copy of every appended
// transaction is kept at <base>/transaction.log.
func Open(store *metastore.Store, base string, mirror bool) (*Log, error) {
	last, err := store.MaxTimestamp(context.Background())
	if err != nil {
		return nil, err
	}

	l := &Log{
		store:  store,
		logger: log.WithComponent("txlog"),
		last:   last,
	}

	if mirror {
		f, err := os.OpenFile(filepath.Join(base, "transaction.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open transaction mirror: %v: %w", err, types.ErrStorage)
		}
		l.mirror = f
	}

	return l, nil
}

// Close releases the mirror file, if any
func (l *Log) Close() error {
	if l.mirror == nil {
		return nil
	}
	return l.mirror.Close()
}

// Stamp returns the next timestamp of the node clock: the current
// microsecond time, bumped past the previous stamp if the wall clock
// has not advanced.
func (l *Log) Stamp() int64 {
	l.clockMu.Lock()
	defer l.clockMu.Unlock()

	now := time.Now().UnixMicro()
	if now <= l.last {
		now = l.last + 1
	}
	l.last = now
	return now
}

// Append stamps the transaction with the node clock and inserts it. The
// db argument lets callers run the insert inside a wider database
// transaction (e.g. together with a forms-index upsert).
func (l *Log) Append(ctx context.Context, db metastore.Execer, txn types.Transaction) (types.Transaction, error) {
	txn.Timestamp = l.Stamp()

	if err := l.store.AppendTransaction(ctx, db, txn); err != nil {
		return types.Transaction{}, err
	}

	l.writeMirror(txn)
	metrics.TransactionsTotal.WithLabelValues(string(txn.DataType), string(txn.Action)).Inc()

	l.logger.Debug().
		Str("txn_id", txn.ID.String()).
		Str("data_type", string(txn.DataType)).
		Str("action", string(txn.Action)).
		Str("alt_key", txn.AltKey).
		Msg("transaction appended")

	return txn, nil
}

// Restore re-asserts the effect of a historical transaction: the
// referenced row is re-read, a fresh id and current timestamp are
// assigned, and the action inverts the current tombstone state (Add if
// the entity is currently deleted, Edit otherwise).
func (l *Log) Restore(ctx context.Context, id uuid.UUID) (types.Transaction, error) {
	old, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return types.Transaction{}, err
	}

	action, err := l.store.LatestAction(ctx, old.DataType, old.AltKey)
	if err != nil {
		return types.Transaction{}, err
	}

	restored := types.NewTransaction(old.DataType, types.ActionEdit, old.BlobID, old.AltKey)
	if action == types.ActionDelete {
		restored.Action = types.ActionAdd
	}

	return l.Append(ctx, l.store.DB(), restored)
}

// writeMirror appends the transaction to the debug mirror. Mirror
// failures are reported but never fail the mutation; the database row is
// the source of truth.
func (l *Log) writeMirror(txn types.Transaction) {
	if l.mirror == nil {
		return
	}

	l.mirrorMu.Lock()
	defer l.mirrorMu.Unlock()

	line, err := json.Marshal(txn)
	if err != nil {
		l.logger.Warn().Err(err).Msg("mirror encode failed")
		return
	}
	if _, err := l.mirror.Write(append(line, '\n')); err != nil {
		l.logger.Warn().Err(err).Msg("mirror write failed")
	}
}
