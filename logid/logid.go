// Package logid defines the identity of a log destination: the tuple of
// type, shard, client hostname, properties and header schema that every
// record is keyed by. A LogId is immutable after construction and yields
// both the canonical lock key used by the buffer router and the rotated
// file name used by the disk writer.
package logid

import (
	"fmt"
	"strconv"
	"strings"
)

// Template placeholders understood by Filename.
const (
	VersionToken  = "LOG_VERSION"
	IntervalToken = "INTERVAL"
)

// Property is a single named destination property. Properties keep the
// order they were supplied in; two LogIds with the same pairs in a
// different order are distinct destinations.
type Property struct {
	Name  string
	Value string
}

// LogId identifies one log destination.
type LogId struct {
	FilePrefixPattern string
	LogType           string
	ClientHostname    string
	Shard             int
	Properties        []Property
	Headers           string

	lockKey string
}

func New(filePrefixPattern, logType, clientHostname string, shard int,
	properties []Property, headers string,
) *LogId {
	id := &LogId{
		FilePrefixPattern: filePrefixPattern,
		LogType:           logType,
		ClientHostname:    clientHostname,
		Shard:             shard,
		Properties:        properties,
		Headers:           headers,
	}
	id.lockKey = id.buildLockKey()
	return id
}

// LockKey returns a canonical string derived from every identity field.
// Two LogIds share a lock key iff they are equal.
func (id *LogId) LockKey() string {
	if id.lockKey == "" {
		id.lockKey = id.buildLockKey()
	}
	return id.lockKey
}

func (id *LogId) buildLockKey() string {
	var b strings.Builder
	b.WriteString(id.FilePrefixPattern)
	b.WriteByte(0x1f)
	b.WriteString(id.LogType)
	b.WriteByte(0x1f)
	b.WriteString(strconv.Itoa(id.Shard))
	b.WriteByte(0x1f)
	b.WriteString(id.ClientHostname)
	for _, p := range id.Properties {
		b.WriteByte(0x1f)
		b.WriteString(p.Name)
		b.WriteByte(0x1e)
		b.WriteString(p.Value)
	}
	b.WriteByte(0x1f)
	b.WriteString(id.Headers)
	return b.String()
}

// Equal reports whether other names the same destination, header schema
// and property order included.
func (id *LogId) Equal(other *LogId) bool {
	if other == nil {
		return false
	}
	return id.LockKey() == other.LockKey()
}

// Filename renders the rotated file name for this destination by
// substituting the interval label, the version and every destination
// property into pattern. Placeholders use the ${name} form.
func (id *LogId) Filename(pattern, interval string, version int) string {
	pairs := make([]string, 0, (len(id.Properties)+2)*2)
	pairs = append(pairs,
		"${"+VersionToken+"}", strconv.Itoa(version),
		"${"+IntervalToken+"}", interval,
	)
	for _, p := range id.Properties {
		pairs = append(pairs, "${"+p.Name+"}", p.Value)
	}
	return id.FilePrefixPattern + strings.NewReplacer(pairs...).Replace(pattern)
}

// HasVersionToken reports whether pattern contains the mandatory
// ${LOG_VERSION} placeholder.
func HasVersionToken(pattern string) bool {
	return strings.Contains(pattern, "${"+VersionToken+"}")
}

func (id *LogId) String() string {
	return fmt.Sprintf("LogId{type: %s, shard: %d, host: %s, properties: %v}",
		id.LogType, id.Shard, id.ClientHostname, id.Properties)
}
