package utils

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vieworks/oap-logstream/logid"
	"github.com/vieworks/oap-logstream/utils/log"
)

var InstanceConfig Config

// BufferSetting binds a destination-type pattern to a buffer capacity.
// Settings are ordered; the first matching pattern wins.
type BufferSetting struct {
	Pattern    string
	BufferSize int
}

type Config struct {
	RootDirectory    string
	ListenPort       string
	CheckpointPath   string
	FilePattern      string
	BucketsPerHour   int
	ShipInterval     time.Duration
	WriterBufferSize int
	Buffers          []*BufferSetting
	StartTime        time.Time
}

const (
	defaultBucketsPerHour   = 12
	defaultShipInterval     = 5 * time.Second
	defaultWriterBufferSize = 32 * 1024
	defaultBufferSize       = 1024 * 1024
)

// ParseConfig loads the YAML agent configuration, applying defaults and
// validating the settings that would otherwise fail deep inside the
// pipeline.
func ParseConfig(data []byte) (*Config, error) {
	var aux struct {
		RootDirectory    string `yaml:"root_directory"`
		ListenPort       int    `yaml:"listen_port"`
		CheckpointPath   string `yaml:"checkpoint_path"`
		FilePattern      string `yaml:"file_pattern"`
		BucketsPerHour   int    `yaml:"buckets_per_hour"`
		ShipInterval     int    `yaml:"ship_interval"`
		WriterBufferSize int    `yaml:"writer_buffer_size"`
		LogLevel         string `yaml:"log_level"`
		Buffers          []struct {
			Pattern    string `yaml:"pattern"`
			BufferSize int    `yaml:"buffer_size"`
		} `yaml:"buffers"`
	}

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return nil, err
	}

	m := &Config{StartTime: InstanceConfig.StartTime}

	if aux.RootDirectory == "" {
		return nil, errors.New("invalid root directory")
	}
	if aux.ListenPort == 0 {
		return nil, errors.New("invalid listen port")
	}
	if aux.FilePattern == "" {
		return nil, errors.New("invalid file pattern")
	}
	if !logid.HasVersionToken(aux.FilePattern) {
		return nil, fmt.Errorf("file pattern %q must contain the ${%s} placeholder",
			aux.FilePattern, logid.VersionToken)
	}

	if aux.LogLevel != "" {
		switch strings.ToLower(aux.LogLevel) {
		case "fatal":
			log.SetLevel(log.FATAL)
		case "error":
			log.SetLevel(log.ERROR)
		case "warning":
			log.SetLevel(log.WARNING)
		case "debug":
			log.SetLevel(log.DEBUG)
		case "info":
			fallthrough
		default:
			log.SetLevel(log.INFO)
		}
	}

	m.RootDirectory = aux.RootDirectory
	m.ListenPort = fmt.Sprintf(":%v", aux.ListenPort)
	m.FilePattern = aux.FilePattern

	m.CheckpointPath = aux.CheckpointPath
	if m.CheckpointPath == "" {
		m.CheckpointPath = filepath.Join(aux.RootDirectory, "buffers.checkpoint")
	}

	m.BucketsPerHour = aux.BucketsPerHour
	if m.BucketsPerHour == 0 {
		m.BucketsPerHour = defaultBucketsPerHour
	}
	if m.BucketsPerHour <= 0 || 60%m.BucketsPerHour != 0 {
		return nil, fmt.Errorf("buckets_per_hour %d must be positive and divide 60 evenly", m.BucketsPerHour)
	}

	m.ShipInterval = defaultShipInterval
	if aux.ShipInterval > 0 {
		m.ShipInterval = time.Duration(aux.ShipInterval) * time.Second
	}

	m.WriterBufferSize = aux.WriterBufferSize
	if m.WriterBufferSize == 0 {
		m.WriterBufferSize = defaultWriterBufferSize
	}

	for _, b := range aux.Buffers {
		m.Buffers = append(m.Buffers, &BufferSetting{
			Pattern:    b.Pattern,
			BufferSize: b.BufferSize,
		})
	}
	if len(m.Buffers) == 0 {
		m.Buffers = []*BufferSetting{{Pattern: "*", BufferSize: defaultBufferSize}}
	}

	return m, nil
}
