package buffers

import (
	"errors"
	"fmt"
)

// ErrAlreadyClosed is returned by Put after Close, and by a second Close.
var ErrAlreadyClosed = errors.New("buffer router already closed")

// NoConfigurationError reports a destination whose log type matches no
// configured buffer pattern. This is a setup defect: no default capacity
// can be guessed safely.
type NoConfigurationError string

func (msg NoConfigurationError) Error() string {
	return fmt.Sprintf("no buffer configuration matches %s", string(msg))
}

// OversizedRecordError reports a single record that exceeds the payload
// capacity of its destination's buffers and so can never be accepted.
type OversizedRecordError struct {
	Length       int
	BufferSize   int
	HeaderLength int
}

func (e *OversizedRecordError) Error() string {
	return fmt.Sprintf("record of %d bytes can never fit a buffer of %d bytes with %d header bytes",
		e.Length, e.BufferSize, e.HeaderLength)
}
