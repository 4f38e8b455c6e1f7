package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/metrics"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Store is the write-once content-addressed blob store. Every payload is
// stored under a fresh 128-bit id; the on-disk name is a stable hash of
// the id string, giving a flat directory that shards cleanly if needed.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) the blob directory under base
func NewStore(base string) (*Store, error) {
	dir := filepath.Join(base, "blobs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob directory: %v: %w", err, types.ErrStorage)
	}
	return &Store{dir: dir}, nil
}

// Path returns the on-disk location for a blob id
func (s *Store) Path(id uuid.UUID) string {
	return filepath.Join(s.dir, digest(id))
}

// Put mints a fresh id and writes the payload under it
func (s *Store) Put(data []byte) (uuid.UUID, error) {
	id := uuid.New()
	if err := s.write(id, data); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Restore writes a payload under a known id. Used by replication, where
// the id was minted by the origin node.
func (s *Store) Restore(id uuid.UUID, data []byte) error {
	err := s.write(id, data)
	if errors.Is(err, os.ErrExist) {
		// Replication retries may race an earlier successful transfer;
		// the blob is immutable, so presence means done.
		return nil
	}
	return err
}

// write creates the blob file failure-atomically: the bytes land in a
// temp file in the same directory, fsync, then an exclusive link into
// place. A second write of the same id is refused.
func (s *Store) write(id uuid.UUID, data []byte) error {
	final := s.Path(id)

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %v: %w", err, types.ErrStorage)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob %s: %v: %w", id, err, types.ErrStorage)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync blob %s: %v: %w", id, err, types.ErrStorage)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob %s: %v: %w", id, err, types.ErrStorage)
	}

	// Link is exclusive-create: it fails with EEXIST instead of
	// overwriting, preserving the no-overwrite invariant.
	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("blob %s already present: %w", id, os.ErrExist)
		}
		return fmt.Errorf("place blob %s: %v: %w", id, err, types.ErrStorage)
	}

	metrics.BlobsWrittenTotal.Inc()
	return nil
}

// Get reads a blob's payload
func (s *Store) Get(id uuid.UUID) ([]byte, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %s: %v: %w", id, err, types.ErrStorage)
	}
	return data, nil
}

// Exists reports whether a blob's payload is on disk
func (s *Store) Exists(id uuid.UUID) (bool, error) {
	_, err := os.Stat(s.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob %s: %v: %w", id, err, types.ErrStorage)
}

// digest is the stable on-disk name for a blob id
func digest(id uuid.UUID) string {
	sum := sha256.Sum256([]byte(id.String()))
	return hex.EncodeToString(sum[:])
}
