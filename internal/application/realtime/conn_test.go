package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/estatehub/realtime/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeConn records every frame it receives.
type fakeConn struct {
	id  string
	err error

	mu     sync.Mutex
	frames []Frame
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) error {
	if c.err != nil {
		return c.err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) received() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func brokenConn(id string) *fakeConn {
	return &fakeConn{id: id, err: fmt.Errorf("socket closed: %w", domain.ErrTransport)}
}

func decodeData(t *testing.T, f Frame, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Data, v))
}
