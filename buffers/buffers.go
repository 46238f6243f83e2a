package buffers

import (
	"os"
	"sync"

	"github.com/vieworks/oap-logstream/logid"
	"github.com/vieworks/oap-logstream/metrics"
	utilio "github.com/vieworks/oap-logstream/utils/io"
	"github.com/vieworks/oap-logstream/utils/log"
)

// Buffers routes incoming writes to the current buffer of each
// destination, swaps full buffers into the ready queue, and persists the
// queue across restarts.
//
// Locking: Put serializes per destination key only, so unrelated
// destinations proceed in parallel. Draining and closing touch global
// queue state and take the whole-router lock, excluding concurrent puts
// for their duration.
type Buffers struct {
	location       string
	configurations BufferConfigurationMap

	mu     sync.RWMutex
	closed bool

	locks        *keyMutexes
	current      sync.Map // destination lock key -> *Buffer
	selectorConf sync.Map // destination lock key -> BufferConfiguration

	ids   *IdGenerator
	ready *ReadyQueue
	cache *BufferCache
}

// New constructs a router persisting its ready queue at location. An
// existing checkpoint is restored best-effort and the file deleted: the
// checkpoint is a hand-off from the previous clean shutdown, not a
// journal. A corrupt or unreadable checkpoint only costs the stale
// buffers it held; startup never fails on it.
func New(location string, configurations BufferConfigurationMap) *Buffers {
	ids := &IdGenerator{}
	bs := &Buffers{
		location:       location,
		configurations: configurations,
		locks:          newKeyMutexes(),
		ids:            ids,
		ready:          newReadyQueue(ids),
		cache:          NewBufferCache(),
	}
	if _, err := os.Stat(location); err == nil {
		restored, err := loadReadyQueue(location, ids)
		if err != nil {
			log.Warn(utilio.GetCallerFileContext(0) + ": " + err.Error())
		} else {
			bs.ready = restored
		}
	}
	log.Info("unsent buffers: %d", bs.ready.Size())
	os.Remove(location)
	return bs
}

// Put appends a record to the current buffer of its destination,
// rotating a full buffer into the ready queue first. The record lands in
// exactly one buffer, whole.
func (bs *Buffers) Put(id *logid.LogId, p []byte) error {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if bs.closed {
		return ErrAlreadyClosed
	}

	conf, err := bs.configuration(id)
	if err != nil {
		return err
	}

	key := id.LockKey()
	lock := bs.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	var b *Buffer
	if cur, ok := bs.current.Load(key); ok {
		b = cur.(*Buffer)
	} else {
		if b, err = bs.cache.Get(id, conf.BufferSize); err != nil {
			return err
		}
		bs.current.Store(key, b)
	}

	if conf.BufferSize-b.HeaderLength() < len(p) {
		return &OversizedRecordError{
			Length:       len(p),
			BufferSize:   conf.BufferSize,
			HeaderLength: b.HeaderLength(),
		}
	}
	if !b.available(len(p)) {
		bs.ready.ready(b)
		if b, err = bs.cache.Get(id, conf.BufferSize); err != nil {
			return err
		}
		bs.current.Store(key, b)
	}
	b.put(p)
	return nil
}

// configuration resolves the buffer configuration for a destination,
// first match wins over the ordered pattern set. The resolution is
// cached per destination key.
func (bs *Buffers) configuration(id *logid.LogId) (BufferConfiguration, error) {
	if conf, ok := bs.selectorConf.Load(id.LockKey()); ok {
		return conf.(BufferConfiguration), nil
	}
	conf, err := bs.configurations.find(id)
	if err != nil {
		return BufferConfiguration{}, err
	}
	bs.selectorConf.Store(id.LockKey(), conf)
	return conf, nil
}

// flush encloses every non-empty current buffer into the ready queue.
// Callers hold the whole-router write lock.
func (bs *Buffers) flush() {
	bs.current.Range(func(key, _ interface{}) bool {
		k := key.(string)
		lock := bs.locks.get(k)
		lock.Lock()
		if cur, ok := bs.current.LoadAndDelete(k); ok {
			b := cur.(*Buffer)
			if b.IsEmpty() {
				bs.cache.Release(b)
			} else {
				bs.ready.ready(b)
			}
		}
		lock.Unlock()
		return true
	})
}

// ForEachReadyData flushes current buffers, then drains the ready queue
// head-first. A consumed buffer is removed and released back to the
// cache; the first rejection stops the pass with that buffer and all
// later ones left in place, preserving delivery order. After Close the
// queue belongs to the checkpoint, so a late pass consumes nothing.
func (bs *Buffers) ForEachReadyData(consume func(b *Buffer) bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.closed {
		return
	}

	bs.flush()
	metrics.ReadyBuffersCount.Observe(float64(bs.ready.Size()))
	log.Debug("buffers to go: %d", bs.ready.Size())

	for {
		b := bs.ready.head()
		if b == nil || !consume(b) {
			break
		}
		bs.ready.pop()
		bs.cache.Release(b)
	}
}

// Close flushes all current buffers and writes the ready queue to the
// checkpoint location. Calling Close twice is a programmer error.
func (bs *Buffers) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.closed {
		return ErrAlreadyClosed
	}
	bs.closed = true
	bs.flush()
	log.Info("writing %d unsent buffers to %s", bs.ready.Size(), bs.location)
	return bs.ready.save(bs.location)
}

func (bs *Buffers) IsEmpty() bool { return bs.ready.IsEmpty() }

func (bs *Buffers) ReadyCount() int { return bs.ready.Size() }

// CacheSize returns the number of pooled free buffers of a capacity.
func (bs *Buffers) CacheSize(bufferSize int) int { return bs.cache.Size(bufferSize) }
