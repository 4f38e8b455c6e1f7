package manager

import (
	"context"
	"fmt"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// BytesAdd stores a raw payload under a caller-supplied key. The blob is
// framed with the key so it stays self-describing when read cold.
func (m *Manager) BytesAdd(ctx context.Context, key string, data []byte) error {
	live, _, err := m.liveBlob(ctx, types.DataTypeBytes, key)
	if err != nil {
		return err
	}
	if live {
		return fmt.Errorf("bytes %q: %w", key, types.ErrConflict)
	}

	blobID, err := m.blobs.Put(types.EncodeBytesBlob(key, data))
	if err != nil {
		return err
	}

	txn := types.NewTransaction(types.DataTypeBytes, types.ActionAdd, blobID, key)
	if _, err := m.txns.Append(ctx, m.meta.DB(), txn); err != nil {
		return err
	}

	m.publish(types.DataTypeBytes, types.ActionAdd, key)
	return nil
}

// BytesEdit replaces the payload stored under a live key
func (m *Manager) BytesEdit(ctx context.Context, key string, data []byte) error {
	live, _, err := m.liveBlob(ctx, types.DataTypeBytes, key)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("bytes %q: %w", key, types.ErrNotFound)
	}

	blobID, err := m.blobs.Put(types.EncodeBytesBlob(key, data))
	if err != nil {
		return err
	}

	txn := types.NewTransaction(types.DataTypeBytes, types.ActionEdit, blobID, key)
	if _, err := m.txns.Append(ctx, m.meta.DB(), txn); err != nil {
		return err
	}

	m.publish(types.DataTypeBytes, types.ActionEdit, key)
	return nil
}

// BytesDelete tombstones a key
func (m *Manager) BytesDelete(ctx context.Context, key string) error {
	return m.Delete(ctx, key, types.DataTypeBytes)
}

// BytesGet returns the raw payload stored under a live key, with the
// self-describing frame stripped
func (m *Manager) BytesGet(ctx context.Context, key string) ([]byte, error) {
	blob, err := m.GetSerialized(ctx, key, types.DataTypeBytes)
	if err != nil {
		return nil, err
	}
	_, payload, err := types.DecodeBytesBlob(blob)
	return payload, err
}

// BytesList returns the live bytes keys
func (m *Manager) BytesList(ctx context.Context) ([]string, error) {
	return m.meta.ListLive(ctx, types.DataTypeBytes)
}
