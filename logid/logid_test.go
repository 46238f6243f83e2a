package logid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogId() *LogId {
	return New("", "type", "log", 0, []Property{{Name: "p", Value: "1"}}, "REQUEST_ID")
}

func TestFilename(t *testing.T) {
	id := testLogId()

	name := id.Filename("${p}-file-${INTERVAL}-${LOG_VERSION}.log.gz", "00", 1)
	assert.Equal(t, "1-file-00-1.log.gz", name)

	name = id.Filename("${p}-file-${INTERVAL}-${LOG_VERSION}.log.gz", "11", 3)
	assert.Equal(t, "1-file-11-3.log.gz", name)
}

func TestFilenamePrefix(t *testing.T) {
	id := New("shard0/", "type", "log", 0, nil, "H")

	name := id.Filename("events-${INTERVAL}-${LOG_VERSION}.log", "05", 2)
	assert.Equal(t, "shard0/events-05-2.log", name)
}

func TestLockKeyEquality(t *testing.T) {
	a := New("", "type", "log", 0, []Property{{"p", "1"}}, "H")
	b := New("", "type", "log", 0, []Property{{"p", "1"}}, "H")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.LockKey(), b.LockKey())

	// Any differing field is a different destination.
	assert.False(t, a.Equal(New("", "type", "log", 1, []Property{{"p", "1"}}, "H")))
	assert.False(t, a.Equal(New("", "type", "log", 0, []Property{{"p", "2"}}, "H")))
	assert.False(t, a.Equal(New("", "type", "log", 0, []Property{{"p", "1"}}, "H2")))

	// Property order is part of the identity.
	ab := New("", "type", "log", 0, []Property{{"a", "1"}, {"b", "2"}}, "H")
	ba := New("", "type", "log", 0, []Property{{"b", "2"}, {"a", "1"}}, "H")
	assert.False(t, ab.Equal(ba))
}

func TestHasVersionToken(t *testing.T) {
	assert.True(t, HasVersionToken("${p}-file-${INTERVAL}-${LOG_VERSION}.log.gz"))
	assert.False(t, HasVersionToken("${p}-file-${INTERVAL}.log.gz"))
}

func TestBinaryRoundTrip(t *testing.T) {
	id := New("prefix/", "access_log", "host-7", 3,
		[]Property{{"p", "1"}, {"region", "eu"}}, "REQUEST_ID\tH2")

	data, err := id.MarshalBinary()
	assert.Nil(t, err)

	decoded, err := UnmarshalBinary(data)
	assert.Nil(t, err)
	assert.True(t, id.Equal(decoded))
	assert.Equal(t, id.Headers, decoded.Headers)
	assert.Equal(t, id.Properties, decoded.Properties)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := UnmarshalBinary([]byte{0xff, 0x01, 0x02})
	assert.NotNil(t, err)
}

func TestTimestampFormat(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2015, 10, 10, h, m, 0, 0, time.UTC)
	}

	assert.Equal(t, "00", BPH12.Format(at(1, 0)))
	assert.Equal(t, "01", BPH12.Format(at(1, 5)))
	assert.Equal(t, "02", BPH12.Format(at(1, 14)))
	assert.Equal(t, "11", BPH12.Format(at(1, 59)))

	assert.Equal(t, "00", BPH1.Format(at(13, 59)))
	assert.Equal(t, "01", BPH2.Format(at(2, 30)))
}

func TestBucketDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, BPH12.BucketDuration())
	assert.Equal(t, time.Hour, BPH1.BucketDuration())
}
