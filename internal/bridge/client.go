package bridge

import (
	"sync"

	"voxelstream/internal/world"
)

// pendingChunk is the unsent state of one chunk for one renderer. Newer
// hand-offs overwrite older ones, so a slow renderer always converges on the
// latest scene.
type pendingChunk struct {
	evicted    bool
	mesh       []byte
	hasVisible bool
	visible    bool
}

// client is one attached renderer. Sink calls mark chunks dirty and wake the
// writer; they never wait on the network.
type client struct {
	id   string
	wake chan struct{}

	mu      sync.Mutex
	pending map[world.Key]*pendingChunk
	order   []world.Key
}

func newClient(id string) *client {
	return &client{
		id:      id,
		wake:    make(chan struct{}, 1),
		pending: make(map[world.Key]*pendingChunk),
	}
}

func (c *client) dirty(key world.Key) *pendingChunk {
	p, ok := c.pending[key]
	if !ok {
		p = &pendingChunk{}
		c.pending[key] = p
		c.order = append(c.order, key)
	}
	return p
}

func (c *client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) pushMesh(key world.Key, frame []byte) {
	c.mu.Lock()
	c.dirty(key).mesh = frame
	c.mu.Unlock()
	c.signal()
}

func (c *client) pushVisibility(key world.Key, visible bool) {
	c.mu.Lock()
	p := c.dirty(key)
	p.hasVisible = true
	p.visible = visible
	c.mu.Unlock()
	c.signal()
}

// pushEvict supersedes any unsent mesh or visibility of the chunk.
func (c *client) pushEvict(key world.Key) {
	c.mu.Lock()
	p := c.dirty(key)
	*p = pendingChunk{evicted: true}
	c.mu.Unlock()
	c.signal()
}

type pendingEntry struct {
	key world.Key
	pendingChunk
}

// take removes every dirty chunk in the order it first became dirty.
func (c *client) take() []pendingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return nil
	}
	out := make([]pendingEntry, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, pendingEntry{key: key, pendingChunk: *c.pending[key]})
	}
	c.pending = make(map[world.Key]*pendingChunk)
	c.order = nil
	return out
}
