// Package disk persists raw record bytes to rotating output files, one
// writer per destination. A writer rolls its file over on rotation-bucket
// boundaries, validates existing files before appending, diverts schema
// drift to a versioned sibling, and quarantines structurally invalid
// files instead of appending to them.
package disk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vieworks/oap-logstream/logid"
	"github.com/vieworks/oap-logstream/metrics"
	utilio "github.com/vieworks/oap-logstream/utils/io"
	"github.com/vieworks/oap-logstream/utils/log"
)

const (
	refreshInterval = 10 * time.Second
	maxVersion      = 10
	corruptedSubdir = ".corrupted"
)

// Writer owns one rotating output file. All mutating operations
// serialize on the writer, so producer and rotation goroutines may call
// in concurrently.
type Writer struct {
	logDir      string
	filePattern string
	logId       *logid.LogId
	timestamp   logid.Timestamp
	bufferSize  int

	mu       sync.Mutex
	out      *utilio.CountingWriteCloser
	interval string
	version  int

	refreshEvery time.Duration
	refreshStop  chan struct{}
	refreshDone  chan struct{}
	now          func() time.Time
}

// NewWriter creates a writer rooted at logDir. The file pattern must
// contain the ${LOG_VERSION} placeholder. A background task re-evaluates
// the rotation bucket every ten seconds so an idle writer still releases
// its file at a bucket boundary.
func NewWriter(logDir, filePattern string, id *logid.LogId, bufferSize int,
	ts logid.Timestamp,
) (*Writer, error) {
	return newWriter(logDir, filePattern, id, bufferSize, ts, refreshInterval)
}

func newWriter(logDir, filePattern string, id *logid.LogId, bufferSize int,
	ts logid.Timestamp, refreshEvery time.Duration,
) (*Writer, error) {
	if !logid.HasVersionToken(filePattern) {
		return nil, MissingVersionTokenError(filePattern)
	}
	w := &Writer{
		logDir:       logDir,
		filePattern:  filePattern,
		logId:        id,
		timestamp:    ts,
		bufferSize:   bufferSize,
		version:      1,
		refreshEvery: refreshEvery,
		refreshStop:  make(chan struct{}),
		refreshDone:  make(chan struct{}),
		now:          time.Now,
	}
	w.interval = ts.Format(w.now())
	go w.refreshLoop()
	log.Debug("spawning %v", w)
	return w, nil
}

func (w *Writer) refreshLoop() {
	defer close(w.refreshDone)
	t := time.NewTicker(w.refreshEvery)
	defer t.Stop()
	for {
		select {
		case <-w.refreshStop:
			return
		case <-t.C:
			w.mu.Lock()
			if err := w.refresh(); err != nil {
				log.Error("refresh %v: %v", w, err)
			}
			w.mu.Unlock()
		}
	}
}

// refresh recomputes the rotation bucket and, when it moved, closes the
// current output and resets the version. Callers hold w.mu.
func (w *Writer) refresh() error {
	interval := w.timestamp.Format(w.now())
	if interval == w.interval {
		return nil
	}
	log.Debug("change interval from %q to %q", w.interval, interval)
	if err := w.closeOutput(); err != nil {
		return err
	}
	w.interval = interval
	w.version = 1
	return nil
}

func (w *Writer) filename() string {
	return filepath.Join(w.logDir, w.logId.Filename(w.filePattern, w.interval, w.version))
}

// Write appends p to the destination's current file, resolving the
// target from scratch when no stream is open. Corruption of an existing
// file is reported to onError and recovered by quarantine; it is never
// surfaced as a write failure. An I/O failure discards the open stream
// so the next call re-resolves cleanly.
func (w *Writer) Write(p []byte, onError func(msg string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.refresh(); err != nil {
		return err
	}
	for w.out == nil {
		filename := w.filename()
		_, statErr := os.Stat(filename)
		switch {
		case os.IsNotExist(statErr):
			if err := w.createOutput(filename); err != nil {
				return err
			}
		case statErr != nil:
			return errors.Wrapf(statErr, "stat %s", filename)
		case utilio.ValidEncoding(filename):
			ok, err := w.matchesFile(filename)
			if err != nil {
				return err
			}
			if !ok {
				// Same bucket, different schema: divert to the next
				// version rather than corrupt the existing file.
				w.version++
				if w.version > maxVersion {
					return &VersionOverflowError{Filename: filename, Version: w.version}
				}
				continue
			}
			out, err := utilio.OpenOutput(filename, w.bufferSize, true)
			if err != nil {
				return errors.Wrapf(err, "open %s for append", filename)
			}
			w.out = utilio.NewCountingWriteCloser(out)
		default:
			msg := "corrupted file, cannot append " + filename
			log.Error(msg)
			if onError != nil {
				onError(msg)
			}
			metrics.CorruptedFilesTotal.Inc()
			if err := w.quarantine(filename); err != nil {
				return err
			}
			if err := w.createOutput(filename); err != nil {
				return err
			}
		}
	}

	log.Debug("writing %d bytes to %v", len(p), w)
	if _, err := w.out.Write(p); err != nil {
		if cerr := w.closeOutput(); cerr != nil {
			log.Error("closing failed output %v: %v", w, cerr)
		}
		return errors.Wrapf(err, "write %d bytes to %s", len(p), w.filename())
	}
	return nil
}

// matchesFile reports whether the existing valid file carries this
// destination's header line and sidecar identity.
func (w *Writer) matchesFile(filename string) (bool, error) {
	fileHeaders, err := readHeaders(filename)
	if err != nil {
		return false, errors.Wrapf(err, "read headers of %s", filename)
	}
	return fileHeaders == w.logId.Headers && metadataMatches(filename, w.logId), nil
}

// createOutput opens a fresh file, writes its sidecar and header line.
func (w *Writer) createOutput(filename string) error {
	out, err := utilio.OpenOutput(filename, w.bufferSize, false)
	if err != nil {
		return errors.Wrapf(err, "create %s", filename)
	}
	w.out = utilio.NewCountingWriteCloser(out)
	if err := writeMetadataForFile(filename, w.logId); err != nil {
		w.discardOutput()
		return err
	}
	if _, err := w.out.Write([]byte(w.logId.Headers + "\n")); err != nil {
		w.discardOutput()
		return errors.Wrapf(err, "write headers to %s", filename)
	}
	log.Debug("[%s] write headers %s", filename, w.logId.Headers)
	return nil
}

// quarantine moves a structurally invalid file and its sidecar under the
// .corrupted subtree, preserving the path relative to the log directory.
func (w *Writer) quarantine(filename string) error {
	rel, err := filepath.Rel(w.logDir, filename)
	if err != nil {
		return errors.Wrapf(err, "relativize %s", filename)
	}
	dest := filepath.Join(w.logDir, corruptedSubdir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return errors.Wrapf(err, "create quarantine directory for %s", filename)
	}
	if err := os.Rename(filename, dest); err != nil {
		return errors.Wrapf(err, "quarantine %s", filename)
	}
	return renameMetadataForFile(filename, dest)
}

func (w *Writer) closeOutput() error {
	if w.out == nil {
		return nil
	}
	count := w.out.Count()
	log.Debug("closing output %v (%d bytes)", w, count)
	start := time.Now()
	err := w.out.Close()
	w.out = nil
	if err != nil {
		return errors.Wrapf(err, "close output of %v", w)
	}
	metrics.BucketSizeBytes.Observe(float64(count))
	metrics.BucketCloseDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (w *Writer) discardOutput() {
	if w.out == nil {
		return
	}
	if err := w.out.Close(); err != nil {
		log.Error("discarding output %v: %v", w, err)
	}
	w.out = nil
}

// Close cancels the background rotation task and closes any open
// stream. The owner calls Close exactly once.
func (w *Writer) Close() error {
	log.Debug("closing %v", w)
	close(w.refreshStop)
	<-w.refreshDone
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeOutput()
}

func (w *Writer) String() string {
	return fmt.Sprintf("Writer@%s", w.filename())
}

// readHeaders returns the first non-blank, non-comment line of the
// encoded file, or an empty string if there is none.
func readHeaders(filename string) (string, error) {
	in, err := utilio.OpenInput(filename)
	if err != nil {
		return "", err
	}
	defer in.Close()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	return "", sc.Err()
}
