package obs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/flashcue-core/internal/session"
)

// Client is the scene-control link to one target, created by Bridge.Dial.
type Client struct {
	bridge   *Bridge
	targetID string
	closed   atomic.Bool
}

// TargetID returns the target the client is bound to.
func (c *Client) TargetID() string {
	return c.targetID
}

// ListElements returns the element names of scene in scene order.
func (c *Client) ListElements(ctx context.Context, scene string) ([]string, error) {
	resp, err := c.do(ctx, Request{Op: OpListElements, Scene: scene})
	if err != nil {
		return nil, err
	}
	if resp.Elements == nil {
		return []string{}, nil
	}
	return resp.Elements, nil
}

// DuplicateElement creates a hidden copy of name in scene.
func (c *Client) DuplicateElement(ctx context.Context, scene, name string) (session.Handle, error) {
	resp, err := c.do(ctx, Request{Op: OpDuplicate, Scene: scene, Element: name})
	if err != nil {
		return 0, err
	}
	if resp.Handle == nil {
		return 0, fmt.Errorf("%w: duplicate %s: response has no handle", ErrRejected, c.targetID)
	}
	return session.Handle(*resp.Handle), nil
}

// SetElementEnabled shows or hides the element behind h.
func (c *Client) SetElementEnabled(ctx context.Context, scene string, h session.Handle, enabled bool) error {
	handle := int64(h)
	_, err := c.do(ctx, Request{Op: OpSetEnabled, Scene: scene, Handle: &handle, Enabled: &enabled})
	return err
}

// RemoveElement deletes the element behind h.
func (c *Client) RemoveElement(ctx context.Context, scene string, h session.Handle) error {
	handle := int64(h)
	_, err := c.do(ctx, Request{Op: OpRemove, Scene: scene, Handle: &handle})
	return err
}

// Close asks the scene bridge to drop the link. Later calls fail with
// ErrClosed; closing twice is a no-op.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_, err := c.bridge.request(ctx, c.targetID, Request{Op: OpDisconnect}, closeTimeout)
	return err
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	if c.closed.Load() {
		return Response{}, ErrClosed
	}
	return c.bridge.request(ctx, c.targetID, req, c.bridge.opts.RequestTimeout)
}
