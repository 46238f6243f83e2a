package logid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Binary framing of a LogId, written at the head of every buffer so a
// drained buffer is self-describing. Fields are length-prefixed with
// uvarints; the layout is append-only versioned by the leading byte.

const codecVersion = 1

// MarshalBinary encodes the identity for buffer framing.
func (id *LogId) MarshalBinary() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte(codecVersion)
	writeString(&b, id.FilePrefixPattern)
	writeString(&b, id.LogType)
	writeString(&b, id.ClientHostname)
	writeUvarint(&b, uint64(id.Shard))
	writeUvarint(&b, uint64(len(id.Properties)))
	for _, p := range id.Properties {
		writeString(&b, p.Name)
		writeString(&b, p.Value)
	}
	writeString(&b, id.Headers)
	return b.Bytes(), nil
}

// UnmarshalBinary decodes a framed identity produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*LogId, error) {
	r := bytes.NewReader(data)
	ver, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read identity framing version: %w", err)
	}
	if ver != codecVersion {
		return nil, fmt.Errorf("unsupported identity framing version %d", ver)
	}
	prefix, err := readString(r)
	if err != nil {
		return nil, err
	}
	logType, err := readString(r)
	if err != nil {
		return nil, err
	}
	hostname, err := readString(r)
	if err != nil {
		return nil, err
	}
	shard, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("read identity shard: %w", err)
	}
	nprops, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("read identity property count: %w", err)
	}
	props := make([]Property, 0, nprops)
	for i := uint64(0); i < nprops; i++ {
		name, err2 := readString(r)
		if err2 != nil {
			return nil, err2
		}
		value, err2 := readString(r)
		if err2 != nil {
			return nil, err2
		}
		props = append(props, Property{Name: name, Value: value})
	}
	headers, err := readString(r)
	if err != nil {
		return nil, err
	}
	return New(prefix, logType, hostname, int(shard), props, headers), nil
}

func writeUvarint(b *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	b.Write(tmp[:n])
}

func writeString(b *bytes.Buffer, s string) {
	writeUvarint(b, uint64(len(s)))
	b.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("read identity field length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read identity field: %w", err)
	}
	return string(buf), nil
}
