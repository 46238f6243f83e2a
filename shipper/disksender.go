package shipper

import (
	"fmt"
	"sync"

	"github.com/vieworks/oap-logstream/buffers"
	"github.com/vieworks/oap-logstream/disk"
	"github.com/vieworks/oap-logstream/logid"
	"github.com/vieworks/oap-logstream/utils/log"
)

// DiskSender lands drained buffers in rotating files under a local log
// directory, one disk writer per destination decoded from the buffer's
// identity framing. It serves local retention when no remote collector
// is configured.
type DiskSender struct {
	logDir      string
	filePattern string
	bufferSize  int
	timestamp   logid.Timestamp

	mu      sync.Mutex
	writers map[string]*disk.Writer
}

func NewDiskSender(logDir, filePattern string, bufferSize int, ts logid.Timestamp) *DiskSender {
	return &DiskSender{
		logDir:      logDir,
		filePattern: filePattern,
		bufferSize:  bufferSize,
		timestamp:   ts,
		writers:     make(map[string]*disk.Writer),
	}
}

func (d *DiskSender) Send(b *buffers.Buffer) error {
	id, err := logid.UnmarshalBinary(b.Header())
	if err != nil {
		return fmt.Errorf("decode identity of buffer %d: %w", b.ID(), err)
	}
	w, err := d.writer(id)
	if err != nil {
		return err
	}
	return w.Write(b.Payload(), func(msg string) {
		log.Error("%s", msg)
	})
}

func (d *DiskSender) writer(id *logid.LogId) (*disk.Writer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w, ok := d.writers[id.LockKey()]; ok {
		return w, nil
	}
	w, err := disk.NewWriter(d.logDir, d.filePattern, id, d.bufferSize, d.timestamp)
	if err != nil {
		return nil, fmt.Errorf("create writer for %v: %w", id, err)
	}
	d.writers[id.LockKey()] = w
	return w, nil
}

// Close closes every writer, returning the first failure.
func (d *DiskSender) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for key, w := range d.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.writers, key)
	}
	return firstErr
}
