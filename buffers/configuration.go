package buffers

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/vieworks/oap-logstream/logid"
)

// BufferConfiguration binds a destination-type pattern to the capacity of
// the buffers allocated for matching destinations.
type BufferConfiguration struct {
	Pattern    string
	BufferSize int

	matcher glob.Glob
}

func NewBufferConfiguration(pattern string, bufferSize int) (BufferConfiguration, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return BufferConfiguration{}, fmt.Errorf("compile buffer pattern %q: %w", pattern, err)
	}
	if bufferSize <= 0 {
		return BufferConfiguration{}, fmt.Errorf("buffer size %d for pattern %q must be positive", bufferSize, pattern)
	}
	return BufferConfiguration{Pattern: pattern, BufferSize: bufferSize, matcher: g}, nil
}

// BufferConfigurationMap is an ordered set of configurations; the first
// pattern matching a destination's log type wins.
type BufferConfigurationMap []BufferConfiguration

// DefaultConfiguration matches every log type with a single capacity.
func DefaultConfiguration(bufferSize int) BufferConfigurationMap {
	conf, err := NewBufferConfiguration("*", bufferSize)
	if err != nil {
		panic(err)
	}
	return BufferConfigurationMap{conf}
}

func (m BufferConfigurationMap) find(id *logid.LogId) (BufferConfiguration, error) {
	for _, conf := range m {
		if conf.matcher.Match(id.LogType) {
			return conf, nil
		}
	}
	return BufferConfiguration{}, NoConfigurationError(id.String())
}
