// Package io provides encoding-aware file streams for the log writers.
// The encoding of a file is chosen by its extension: ".gz" files are
// gzip-compressed, anything else is written as-is.
package io

import (
	"bufio"
	"errors"
	"fmt"
	goio "io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const gzSuffix = ".gz"

// IsGzip reports whether path names a gzip-encoded file.
func IsGzip(path string) bool {
	return strings.HasSuffix(path, gzSuffix)
}

// OpenOutput opens path for writing, creating parent directories as needed.
// With appendTo set, new data is appended after the existing content; for
// gzip files this starts a new stream member, which decoders read as a
// continuation of the same stream.
func OpenOutput(path string, bufferSize int, appendTo bool) (goio.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create parent directory for %s: %w", path, err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendTo {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	fp, err := os.OpenFile(path, flags, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open %s for writing: %w", path, err)
	}

	bw := bufio.NewWriterSize(fp, bufferSize)
	if IsGzip(path) {
		return &outStream{w: gzip.NewWriter(bw), bw: bw, fp: fp}, nil
	}
	return &outStream{w: nopWriteCloser{bw}, bw: bw, fp: fp}, nil
}

// OpenInput opens path for reading, transparently decoding gzip files.
func OpenInput(path string) (goio.ReadCloser, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s for reading: %w", path, err)
	}
	if !IsGzip(path) {
		return fp, nil
	}
	zr, err := gzip.NewReader(fp)
	if err != nil {
		fp.Close()
		return nil, fmt.Errorf("open gzip reader for %s: %w", path, err)
	}
	return &inStream{r: zr, fp: fp}, nil
}

// ValidEncoding reports whether the file at path can be decoded end to end
// with the encoding implied by its extension. Plain files are always valid.
func ValidEncoding(path string) bool {
	if !IsGzip(path) {
		_, err := os.Stat(path)
		return err == nil
	}
	in, err := OpenInput(path)
	if err != nil {
		return false
	}
	defer in.Close()
	_, err = goio.Copy(goio.Discard, in)
	return err == nil
}

type outStream struct {
	w  goio.WriteCloser
	bw *bufio.Writer
	fp *os.File
}

func (s *outStream) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *outStream) Close() error {
	err := s.w.Close()
	if err2 := s.bw.Flush(); err == nil {
		err = err2
	}
	if err2 := s.fp.Close(); err == nil {
		err = err2
	}
	return err
}

type nopWriteCloser struct{ goio.Writer }

func (nopWriteCloser) Close() error { return nil }

type inStream struct {
	r  goio.ReadCloser
	fp *os.File
}

func (s *inStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *inStream) Close() error {
	err := s.r.Close()
	if err2 := s.fp.Close(); err == nil {
		err = err2
	}
	return err
}

// CountingWriteCloser wraps a WriteCloser and counts the bytes written
// through it, before any compression applied by the wrapped stream.
type CountingWriteCloser struct {
	w     goio.WriteCloser
	count int64
}

func NewCountingWriteCloser(w goio.WriteCloser) *CountingWriteCloser {
	return &CountingWriteCloser{w: w}
}

func (c *CountingWriteCloser) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += int64(n)
	return n, err
}

func (c *CountingWriteCloser) Close() error {
	if c.w == nil {
		return errors.New("stream already closed")
	}
	err := c.w.Close()
	c.w = nil
	return err
}

// Count returns the number of bytes written so far.
func (c *CountingWriteCloser) Count() int64 { return c.count }
