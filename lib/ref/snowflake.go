// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strconv"
	"time"
)

// snowflakeEpoch is the platform epoch (2015-01-01T00:00:00Z) in Unix
// milliseconds.
const snowflakeEpoch = 1420070400000

// Snowflake identifies a platform object. The zero value means unset.
type Snowflake uint64

// ParseSnowflake parses a decimal snowflake string.
func ParseSnowflake(raw string) (Snowflake, error) {
	if raw == "" {
		return 0, fmt.Errorf("ref: empty snowflake")
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ref: invalid snowflake %q: %w", raw, err)
	}
	if value == 0 {
		return 0, fmt.Errorf("ref: invalid snowflake %q: zero", raw)
	}
	return Snowflake(value), nil
}

// String returns the decimal form.
func (s Snowflake) String() string { return strconv.FormatUint(uint64(s), 10) }

// IsZero reports whether the snowflake is unset.
func (s Snowflake) IsZero() bool { return s == 0 }

// Int64 returns the value as stored in SQLite INTEGER columns.
// Platform snowflakes never set the sign bit.
func (s Snowflake) Int64() int64 { return int64(s) }

// Time returns the creation time encoded in the snowflake.
func (s Snowflake) Time() time.Time {
	return time.UnixMilli(int64(s>>22) + snowflakeEpoch).UTC()
}

// MarshalText encodes the snowflake as its decimal string, which is
// how the platform expects ids in JSON.
func (s Snowflake) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts the decimal string form. Empty input yields
// the zero value.
func (s *Snowflake) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*s = 0
		return nil
	}
	parsed, err := ParseSnowflake(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
