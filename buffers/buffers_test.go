package buffers

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vieworks/oap-logstream/logid"
)

func testLogId(logType string) *logid.LogId {
	return logid.New("", logType, "log", 0,
		[]logid.Property{{Name: "p", Value: "1"}}, "REQUEST_ID")
}

// capacityFor sizes a buffer so that exactly payload bytes fit after the
// identity framing.
func capacityFor(t *testing.T, id *logid.LogId, payload int) int {
	t.Helper()
	header, err := id.MarshalBinary()
	require.Nil(t, err)
	return len(header) + payload
}

func setup(t *testing.T, id *logid.LogId, payload int) (*Buffers, string, int) {
	t.Helper()
	location := filepath.Join(t.TempDir(), "buffers.checkpoint")
	capacity := capacityFor(t, id, payload)
	return New(location, DefaultConfiguration(capacity)), location, capacity
}

func drainAll(bs *Buffers) [][]byte {
	var payloads [][]byte
	bs.ForEachReadyData(func(b *Buffer) bool {
		p := make([]byte, len(b.Payload()))
		copy(p, b.Payload())
		payloads = append(payloads, p)
		return true
	})
	return payloads
}

func TestPutPreservesOrder(t *testing.T) {
	id := testLogId("type")
	bs, _, _ := setup(t, id, 64)

	for _, s := range []string{"11", "22", "33"} {
		assert.Nil(t, bs.Put(id, []byte(s)))
	}

	payloads := drainAll(bs)
	require.Len(t, payloads, 1)
	assert.Equal(t, "112233", string(payloads[0]))
}

func TestOversizedRecord(t *testing.T) {
	id := testLogId("type")
	bs, _, _ := setup(t, id, 4)

	err := bs.Put(id, []byte("12345"))
	var oversized *OversizedRecordError
	require.ErrorAs(t, err, &oversized)
	assert.Equal(t, 5, oversized.Length)

	// The failed put mutated nothing: a fitting record is still the
	// first and only payload.
	assert.Nil(t, bs.Put(id, []byte("1234")))
	payloads := drainAll(bs)
	require.Len(t, payloads, 1)
	assert.Equal(t, "1234", string(payloads[0]))
}

func TestRotateOnFull(t *testing.T) {
	id := testLogId("type")
	bs, _, _ := setup(t, id, 4)

	assert.Nil(t, bs.Put(id, []byte("aaa")))
	// No room for two more bytes: current buffer is enclosed and a fresh
	// one acquired.
	assert.Nil(t, bs.Put(id, []byte("bb")))
	assert.Equal(t, 1, bs.ReadyCount())

	payloads := drainAll(bs)
	require.Len(t, payloads, 2)
	assert.Equal(t, "aaa", string(payloads[0]))
	assert.Equal(t, "bb", string(payloads[1]))
}

func TestDrainReleasesToCache(t *testing.T) {
	id := testLogId("type")
	bs, _, capacity := setup(t, id, 4)

	assert.Nil(t, bs.Put(id, []byte("aaaa")))
	assert.Nil(t, bs.Put(id, []byte("bbbb")))
	assert.Nil(t, bs.Put(id, []byte("cccc")))

	assert.Equal(t, 0, bs.CacheSize(capacity))
	drainAll(bs)
	assert.True(t, bs.IsEmpty())
	assert.Equal(t, 3, bs.CacheSize(capacity))
}

func TestDrainStopsOnRejection(t *testing.T) {
	id := testLogId("type")
	bs, _, _ := setup(t, id, 4)

	for _, s := range []string{"aaaa", "bbbb", "cccc"} {
		assert.Nil(t, bs.Put(id, []byte(s)))
	}

	var seen []string
	bs.ForEachReadyData(func(b *Buffer) bool {
		seen = append(seen, string(b.Payload()))
		return len(seen) < 2 // reject the second buffer
	})
	assert.Equal(t, []string{"aaaa", "bbbb"}, seen)
	assert.Equal(t, 2, bs.ReadyCount())

	// The rejected buffer and everything after it are still queued, in
	// original order and untouched.
	payloads := drainAll(bs)
	assert.Equal(t, "bbbb", string(payloads[0]))
	assert.Equal(t, "cccc", string(payloads[1]))
}

func TestFlushEnclosesPartialBuffers(t *testing.T) {
	a := testLogId("alpha")
	b := testLogId("beta")
	location := filepath.Join(t.TempDir(), "buffers.checkpoint")
	bs := New(location, DefaultConfiguration(capacityFor(t, a, 64)))

	assert.Nil(t, bs.Put(a, []byte("a1")))
	assert.Nil(t, bs.Put(b, []byte("b1")))
	assert.Equal(t, 0, bs.ReadyCount())

	payloads := drainAll(bs)
	assert.Len(t, payloads, 2)
	assert.True(t, bs.IsEmpty())
}

func TestNoMatchingConfiguration(t *testing.T) {
	id := testLogId("access")
	conf, err := NewBufferConfiguration("metrics_*", 128)
	require.Nil(t, err)
	bs := New(filepath.Join(t.TempDir(), "buffers.checkpoint"), BufferConfigurationMap{conf})

	err = bs.Put(id, []byte("x"))
	var noConf NoConfigurationError
	assert.ErrorAs(t, err, &noConf)
}

func TestFirstMatchingConfigurationWins(t *testing.T) {
	id := testLogId("access_log")
	small, err := NewBufferConfiguration("access_*", capacityFor(t, id, 4))
	require.Nil(t, err)
	large, err := NewBufferConfiguration("*", capacityFor(t, id, 1024))
	require.Nil(t, err)
	bs := New(filepath.Join(t.TempDir(), "buffers.checkpoint"),
		BufferConfigurationMap{small, large})

	// The 4-byte payload budget of the first match applies, so a 5-byte
	// record is oversized even though the fallback would hold it.
	err = bs.Put(id, []byte("12345"))
	var oversized *OversizedRecordError
	assert.ErrorAs(t, err, &oversized)
}

func TestCheckpointRoundTrip(t *testing.T) {
	id := testLogId("type")
	bs, location, _ := setup(t, id, 4)

	assert.Nil(t, bs.Put(id, []byte("aaaa")))
	assert.Nil(t, bs.Put(id, []byte("bbbb")))
	assert.Nil(t, bs.Close())

	_, err := os.Stat(location)
	assert.Nil(t, err)

	restored := New(location, DefaultConfiguration(capacityFor(t, id, 4)))

	// The checkpoint is a hand-off: consumed and deleted at construction.
	_, err = os.Stat(location)
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, 2, restored.ReadyCount())
	payloads := drainAll(restored)
	assert.Equal(t, "aaaa", string(payloads[0]))
	assert.Equal(t, "bbbb", string(payloads[1]))
}

func TestCheckpointKeepsIdsMonotonic(t *testing.T) {
	id := testLogId("type")
	bs, location, _ := setup(t, id, 4)

	assert.Nil(t, bs.Put(id, []byte("aaaa")))
	assert.Nil(t, bs.Put(id, []byte("bbbb")))
	assert.Nil(t, bs.Close())

	restored := New(location, DefaultConfiguration(capacityFor(t, id, 4)))
	assert.Nil(t, restored.Put(id, []byte("cccc")))

	var ids []int64
	restored.ForEachReadyData(func(b *Buffer) bool {
		ids = append(ids, b.ID())
		return true
	})
	require.Len(t, ids, 3)
	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])
}

func TestCorruptCheckpointIgnored(t *testing.T) {
	location := filepath.Join(t.TempDir(), "buffers.checkpoint")
	require.Nil(t, os.WriteFile(location, []byte("not a checkpoint"), 0o640))

	bs := New(location, DefaultConfiguration(128))
	assert.True(t, bs.IsEmpty())

	_, err := os.Stat(location)
	assert.True(t, os.IsNotExist(err))
}

func TestCloseTwice(t *testing.T) {
	id := testLogId("type")
	bs, _, _ := setup(t, id, 4)

	assert.Nil(t, bs.Close())
	assert.ErrorIs(t, bs.Close(), ErrAlreadyClosed)
}

func TestDrainAfterCloseConsumesNothing(t *testing.T) {
	id := testLogId("type")
	bs, location, _ := setup(t, id, 4)

	assert.Nil(t, bs.Put(id, []byte("aaaa")))
	assert.Nil(t, bs.Close())

	// The queue now belongs to the checkpoint: a late drain pass must not
	// deliver buffers that would ship again after restart.
	var seen []string
	bs.ForEachReadyData(func(b *Buffer) bool {
		seen = append(seen, string(b.Payload()))
		return true
	})
	assert.Empty(t, seen)

	restored := New(location, DefaultConfiguration(capacityFor(t, id, 4)))
	assert.Equal(t, 1, restored.ReadyCount())
	payloads := drainAll(restored)
	require.Len(t, payloads, 1)
	assert.Equal(t, "aaaa", string(payloads[0]))
}

func TestPutAfterClose(t *testing.T) {
	id := testLogId("type")
	bs, _, _ := setup(t, id, 4)

	assert.Nil(t, bs.Close())
	assert.ErrorIs(t, bs.Put(id, []byte("x")), ErrAlreadyClosed)
}

func TestConcurrentDestinationsIndependent(t *testing.T) {
	ids := []*logid.LogId{testLogId("alpha"), testLogId("beta"), testLogId("gamma")}
	location := filepath.Join(t.TempDir(), "buffers.checkpoint")
	bs := New(location, DefaultConfiguration(capacityFor(t, ids[0], 1024)))

	const perDestination = 100
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id *logid.LogId) {
			defer wg.Done()
			for i := 0; i < perDestination; i++ {
				assert.Nil(t, bs.Put(id, []byte("ab")))
			}
		}(id)
	}
	wg.Wait()

	total := 0
	bs.ForEachReadyData(func(b *Buffer) bool {
		total += len(b.Payload())
		return true
	})
	assert.Equal(t, len(ids)*perDestination*2, total)
}
