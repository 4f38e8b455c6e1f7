package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CCShambots/5907-scouting-api/pkg/log"
	"github.com/CCShambots/5907-scouting-api/pkg/manager"
	"github.com/CCShambots/5907-scouting-api/pkg/metrics"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// State names the phase of the pull session against the parent
type State string

const (
	StateUnstarted    State = "unstarted"
	StatePolling      State = "polling"
	StateFetchingBlob State = "fetching_blob"
	StateApplying     State = "applying"
	StateIdle         State = "idle"
)

// Config holds a node's replication identity and topology
type Config struct {
	NodeID           uuid.UUID
	Parent           string // parent base URL; empty disables the pull loop
	ApprovedChildren []uuid.UUID

	PollInterval   time.Duration // idle wait between pull cycles
	RequestTimeout time.Duration // per-call timeout against the parent
	MaxRetries     uint64        // bounded retries for transient failures
}

// Syncer owns the pull session against the configured parent and
// answers peer-facing reads for approved children. The watermark in the
// metastore is the only persistent coordination variable.
type Syncer struct {
	cfg    Config
	mgr    *manager.Manager
	client *Client
	logger zerolog.Logger

	approved map[uuid.UUID]bool
	parentID uuid.UUID

	stateMu sync.RWMutex
	state   State

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a syncer over the storage manager
func New(cfg Config, mgr *manager.Manager) *Syncer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}

	approved := make(map[uuid.UUID]bool, len(cfg.ApprovedChildren))
	for _, id := range cfg.ApprovedChildren {
		approved[id] = true
	}

	s := &Syncer{
		cfg:      cfg,
		mgr:      mgr,
		approved: approved,
		logger:   log.WithComponent("syncer"),
		state:    StateUnstarted,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if cfg.Parent != "" {
		s.client = NewClient(cfg.Parent, cfg.NodeID, cfg.RequestTimeout)
	}
	return s
}

// ID returns this node's stable id
func (s *Syncer) ID() uuid.UUID { return s.cfg.NodeID }

// State reports the current session phase
func (s *Syncer) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Syncer) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// Start launches the pull loop. Without a configured parent the node
// only serves its children.
func (s *Syncer) Start() {
	if s.client == nil {
		close(s.doneCh)
		return
	}
	go s.run()
}

// Stop terminates the pull loop and waits for it to exit
func (s *Syncer) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Syncer) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	// Drain immediately on startup, then on every tick.
	s.pullCycle()
	for {
		select {
		case <-ticker.C:
			s.pullCycle()
		case <-s.stopCh:
			return
		}
	}
}

// pullCycle applies parent transactions until the tail is reached or an
// error aborts the cycle. Transient failures already consumed their
// bounded retries inside Pull, so any error here waits for the next
// tick.
func (s *Syncer) pullCycle() {
	ctx := context.Background()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		applied, err := s.Pull(ctx)
		if err != nil {
			metrics.SyncPullsTotal.WithLabelValues("error").Inc()
			s.logger.Error().Err(err).Msg("sync cycle aborted")
			s.setState(StateIdle)
			return
		}
		if !applied {
			metrics.SyncPullsTotal.WithLabelValues("tail").Inc()
			s.setState(StateIdle)
			return
		}
		metrics.SyncPullsTotal.WithLabelValues("applied").Inc()
	}
}

// Pull executes one iteration of the pull protocol: fetch the
// transaction after the watermark, transfer its blob if missing, append
// it with a locally reassigned timestamp, then advance the watermark.
// It returns false when the parent has nothing new.
func (s *Syncer) Pull(ctx context.Context) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	s.setState(StatePolling)

	if err := s.ensureParentID(ctx); err != nil {
		return false, err
	}

	meta := s.mgr.Meta()

	var after *uuid.UUID
	if wm, ok, err := meta.Watermark(ctx, s.parentID); err != nil {
		return false, err
	} else if ok {
		after = &wm
	}

	txn, err := s.nextWithRetry(ctx, after)
	if err != nil {
		return false, err
	}
	if txn == nil {
		return false, nil
	}

	present, err := s.mgr.Blobs().Exists(txn.BlobID)
	if err != nil {
		return false, err
	}
	if !present {
		if err := s.fetchBlob(ctx, txn.BlobID); err != nil {
			return false, err
		}
	}

	s.setState(StateApplying)

	// A retry after a failed watermark update may see the transaction
	// already in the log; appending again would violate id uniqueness.
	applied, err := meta.HasTransaction(ctx, txn.ID)
	if err != nil {
		return false, err
	}
	if !applied {
		if err := s.mgr.ApplyReplicated(ctx, *txn); err != nil {
			return false, err
		}
	}

	if err := meta.SetWatermark(ctx, s.parentID, txn.ID); err != nil {
		return false, err
	}

	s.logger.Debug().
		Str("txn_id", txn.ID.String()).
		Str("alt_key", txn.AltKey).
		Msg("replicated transaction")
	return true, nil
}

// fetchBlob records the missing blob in the needed set, transfers it
// with bounded exponential backoff, and clears the entry once the bytes
// are durable.
func (s *Syncer) fetchBlob(ctx context.Context, blobID uuid.UUID) error {
	meta := s.mgr.Meta()
	s.setState(StateFetchingBlob)

	if err := meta.AddNeededBlob(ctx, s.parentID, blobID); err != nil {
		return err
	}

	data, err := withRetryImpl(ctx, s.cfg.MaxRetries, func() ([]byte, error) {
		return s.client.Blob(ctx, blobID)
	})
	if err != nil {
		return err
	}

	if err := s.mgr.Blobs().Restore(blobID, data); err != nil {
		return err
	}
	metrics.SyncBlobsFetchedTotal.Inc()
	return meta.RemoveNeededBlob(ctx, s.parentID, blobID)
}

func (s *Syncer) ensureParentID(ctx context.Context) error {
	if s.parentID != uuid.Nil {
		return nil
	}
	id, err := withRetryImpl(ctx, s.cfg.MaxRetries, func() (uuid.UUID, error) {
		return s.client.ID(ctx)
	})
	if err != nil {
		return fmt.Errorf("fetch parent id: %w", err)
	}
	s.parentID = id
	return nil
}

func (s *Syncer) nextWithRetry(ctx context.Context, after *uuid.UUID) (*types.Transaction, error) {
	return withRetryImpl(ctx, s.cfg.MaxRetries, func() (*types.Transaction, error) {
		return s.client.Next(ctx, after)
	})
}

// withRetryImpl runs op under bounded exponential backoff, retrying
// only transient failures
func withRetryImpl[T any](ctx context.Context, maxRetries uint64, op func() (T, error)) (T, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)

	return backoff.RetryWithData(func() (T, error) {
		out, err := op()
		if err != nil && !types.IsTransient(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, policy)
}
