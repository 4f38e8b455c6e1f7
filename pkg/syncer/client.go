package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Client talks to a parent peer's sync surface. Every request carries
// this node's id in the child_id header; the parent refuses unapproved
// children.
type Client struct {
	base    string
	childID uuid.UUID
	http    *http.Client
}

// NewClient builds a parent client. timeout bounds each call; zero means
// a 10s default.
func NewClient(base string, childID uuid.UUID, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:    base,
		childID: childID,
		http:    &http.Client{Timeout: timeout},
	}
}

// ID fetches the parent's node id
func (c *Client) ID(ctx context.Context) (uuid.UUID, error) {
	var out struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.getJSON(ctx, "/sync/id", &out); err != nil {
		return uuid.Nil, err
	}
	return out.ID, nil
}

// Next returns the parent's first transaction (after == nil) or the one
// immediately after the given id. nil means the watermark is at the
// parent's tail.
func (c *Client) Next(ctx context.Context, after *uuid.UUID) (*types.Transaction, error) {
	path := "/sync/next"
	if after != nil {
		path += "?after=" + url.QueryEscape(after.String())
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var txn types.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txn); err != nil {
		return nil, fmt.Errorf("decode transaction: %v: %w", err, types.ErrDecode)
	}
	return &txn, nil
}

// Blob fetches a blob's payload from the parent
func (c *Client) Blob(ctx context.Context, id uuid.UUID) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sync/blob/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %v: %w", id, err, types.ErrTransient)
	}
	return data, nil
}

// Diff sends this node's transaction id set and returns the
// symmetric-difference halves as the parent sees them
func (c *Client) Diff(ctx context.Context, ids []uuid.UUID) (have, need []uuid.UUID, err error) {
	body, err := json.Marshal(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("encode diff: %v: %w", err, types.ErrEncode)
	}

	resp, err := c.do(ctx, http.MethodPost, "/sync/diff", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, nil, err
	}

	var out struct {
		Have []uuid.UUID `json:"have"`
		Need []uuid.UUID `json:"need"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decode diff: %v: %w", err, types.ErrDecode)
	}
	return out.Have, out.Need, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %v: %w", path, err, types.ErrDecode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %v: %w", path, err, types.ErrTransient)
	}
	req.Header.Set("child_id", c.childID.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, types.ErrTransient)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("parent refused child: %w", types.ErrAuthDenied)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", resp.Request.URL.Path, types.ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("parent returned %d: %w", resp.StatusCode, types.ErrTransient)
	default:
		return fmt.Errorf("parent returned %d: %w", resp.StatusCode, types.ErrStorage)
	}
}
