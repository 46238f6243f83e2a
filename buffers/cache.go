package buffers

import (
	"sync"

	"github.com/vieworks/oap-logstream/logid"
)

// BufferCache recycles released buffers keyed by their capacity so that
// high-churn destinations do not reallocate on every swap.
type BufferCache struct {
	mu   sync.Mutex
	free map[int][]*Buffer
}

func NewBufferCache() *BufferCache {
	return &BufferCache{free: make(map[int][]*Buffer)}
}

// Get pops a free buffer of the requested capacity and resets it for id,
// or allocates a new one when the pool is empty.
func (c *BufferCache) Get(id *logid.LogId, bufferSize int) (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, ok := c.free[bufferSize]
	if !ok {
		c.free[bufferSize] = nil
	}
	if len(list) == 0 {
		return newBuffer(bufferSize, id)
	}
	b := list[0]
	c.free[bufferSize] = list[1:]
	if err := b.reset(id); err != nil {
		return nil, err
	}
	return b, nil
}

// Release returns a buffer to the pool of its capacity. Buffers of a
// capacity the cache has never handed out are dropped.
func (c *BufferCache) Release(b *Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, ok := c.free[b.Capacity()]
	if ok {
		c.free[b.Capacity()] = append(list, b)
	}
}

// Size returns the number of pooled buffers of the given capacity.
func (c *BufferCache) Size(bufferSize int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.free[bufferSize])
}
