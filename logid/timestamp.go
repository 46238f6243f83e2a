package logid

import (
	"fmt"
	"time"
)

// Timestamp is a rotation granularity expressed as buckets per hour.
// BPH12 slices each hour into twelve 5-minute buckets.
type Timestamp int

const (
	BPH1  Timestamp = 1
	BPH2  Timestamp = 2
	BPH6  Timestamp = 6
	BPH12 Timestamp = 12
)

// Bucket returns the index of the bucket t falls into within its hour.
func (ts Timestamp) Bucket(t time.Time) int {
	return t.UTC().Minute() / (60 / int(ts))
}

// Format renders the interval label for t. Labels are stable and only
// compared for equality by the rotation logic.
func (ts Timestamp) Format(t time.Time) string {
	return fmt.Sprintf("%02d", ts.Bucket(t))
}

// BucketDuration returns the wall-clock length of one bucket.
func (ts Timestamp) BucketDuration() time.Duration {
	return time.Hour / time.Duration(ts)
}
