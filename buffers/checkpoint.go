package buffers

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// The checkpoint is a whole-queue snapshot written at clean shutdown and
// consumed (then deleted) at the next startup. The envelope carries a
// version so an incompatible snapshot is rejected instead of silently
// decoded into garbage.

const checkpointVersion = 1

type checkpointState struct {
	Version int                `msgpack:"version"`
	LastID  int64              `msgpack:"last_id"`
	Buffers []checkpointBuffer `msgpack:"buffers"`
}

type checkpointBuffer struct {
	ID        int64  `msgpack:"id"`
	Capacity  int    `msgpack:"capacity"`
	HeaderLen int    `msgpack:"header_len"`
	Data      []byte `msgpack:"data"`
}

// save serializes the queue to path, replacing any previous snapshot.
func (q *ReadyQueue) save(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	state := checkpointState{
		Version: checkpointVersion,
		LastID:  atomic.LoadInt64(&q.ids.last),
		Buffers: make([]checkpointBuffer, 0, len(q.buffers)),
	}
	for _, b := range q.buffers {
		state.Buffers = append(state.Buffers, checkpointBuffer{
			ID:        b.id,
			Capacity:  len(b.data),
			HeaderLen: b.headerLen,
			Data:      b.data[:b.pos],
		})
	}

	data, err := msgpack.Marshal(&state)
	if err != nil {
		return fmt.Errorf("encode buffer checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write buffer checkpoint %s: %w", path, err)
	}
	return nil
}

// loadReadyQueue restores a queue from the snapshot at path and advances
// the id generator past every restored id.
func loadReadyQueue(path string, ids *IdGenerator) (*ReadyQueue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read buffer checkpoint %s: %w", path, err)
	}
	var state checkpointState
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode buffer checkpoint %s: %w", path, err)
	}
	if state.Version != checkpointVersion {
		return nil, fmt.Errorf("buffer checkpoint %s has unsupported version %d", path, state.Version)
	}

	q := newReadyQueue(ids)
	for _, cb := range state.Buffers {
		if cb.HeaderLen > len(cb.Data) || cb.Capacity < len(cb.Data) {
			return nil, fmt.Errorf("buffer checkpoint %s holds malformed buffer %d", path, cb.ID)
		}
		b := &Buffer{
			data:      make([]byte, cb.Capacity),
			headerLen: cb.HeaderLen,
			pos:       len(cb.Data),
			closed:    true,
			id:        cb.ID,
		}
		copy(b.data, cb.Data)
		q.buffers = append(q.buffers, b)
	}
	ids.advanceTo(state.LastID)
	return q, nil
}
