package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Timestamp wraps time.Time so that it marshals to and from JSON as an
// integer count of milliseconds since the Unix epoch, matching the journal
// wire schema (§6: "all integer timestamps are milliseconds since epoch").
// Embedding time.Time keeps every existing call site that formats, compares,
// or subtracts a Timestamp working unchanged; only literal construction from
// a bare time.Time needs to go through NewTimestamp.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t as a Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON implements json.Marshaler, emitting milliseconds since epoch.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(t.Time.UnixMilli(), 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler, parsing milliseconds since epoch.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		t.Time = time.Time{}
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("domain: timestamp must be milliseconds since epoch: %w", err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}
