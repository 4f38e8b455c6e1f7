package syncer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Peer-facing reads. These are pure functions of the log; the only gate
// is the approved-children check, applied by every caller.

// Authorize verifies a caller's child id against the approved set
func (s *Syncer) Authorize(childID uuid.UUID) error {
	if !s.approved[childID] {
		return fmt.Errorf("child %s: %w", childID, types.ErrAuthDenied)
	}
	return nil
}

// NextAfter returns the transaction following the given id, or the
// earliest transaction when after is nil. nil means the caller is at
// this node's tail.
func (s *Syncer) NextAfter(ctx context.Context, after *uuid.UUID) (*types.Transaction, error) {
	if after == nil {
		return s.mgr.Meta().First(ctx)
	}
	return s.mgr.Meta().After(ctx, *after)
}

// GetBlob serves a blob payload to a child
func (s *Syncer) GetBlob(_ context.Context, id uuid.UUID) ([]byte, error) {
	return s.mgr.Blobs().Get(id)
}

// Diff computes the set-symmetric difference between this node's
// transaction ids and a peer's: ids only here, and ids only there.
// Children use it for bootstrap reconciliation.
func (s *Syncer) Diff(ctx context.Context, peer []uuid.UUID) (haveOnlyHere, haveOnlyThere []uuid.UUID, err error) {
	own, err := s.mgr.Meta().AllTransactionIDs(ctx)
	if err != nil {
		return nil, nil, err
	}

	ownSet := make(map[uuid.UUID]bool, len(own))
	for _, id := range own {
		ownSet[id] = true
	}
	peerSet := make(map[uuid.UUID]bool, len(peer))
	for _, id := range peer {
		peerSet[id] = true
	}

	for _, id := range own {
		if !peerSet[id] {
			haveOnlyHere = append(haveOnlyHere, id)
		}
	}
	for _, id := range peer {
		if !ownSet[id] {
			haveOnlyThere = append(haveOnlyThere, id)
		}
	}
	return haveOnlyHere, haveOnlyThere, nil
}
