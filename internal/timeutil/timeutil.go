// Package timeutil provides canonical timestamp formatting and parsing.
// All persisted and broadcast timestamps use the fixed layout
// "YYYY-MM-DD HH:MM:SS" in a single display zone (Asia/Taipei by default),
// with no fractional seconds and no zone suffix.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prediction-scanner/internal/types"
)

// Layout is the canonical timestamp layout
const Layout = "2006-01-02 15:04:05"

// DefaultZone is the canonical display zone
const DefaultZone = "Asia/Taipei"

// Unix values at or above this magnitude are treated as milliseconds
const millisThreshold = int64(1e10)

var canonicalRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

var (
	locMu sync.RWMutex
	loc   *time.Location
)

func location() *time.Location {
	locMu.RLock()
	l := loc
	locMu.RUnlock()
	if l != nil {
		return l
	}
	// Fall back to the default zone; time.LoadLocation only fails here on a
	// broken zoneinfo install, in which case UTC keeps the process alive.
	l, err := time.LoadLocation(DefaultZone)
	if err != nil {
		l = time.UTC
	}
	locMu.Lock()
	loc = l
	locMu.Unlock()
	return l
}

// SetZone overrides the display zone. Used at startup when the TIMEZONE
// environment variable is set.
func SetZone(name string) error {
	l, err := time.LoadLocation(name)
	if err != nil {
		return types.NewServiceError(types.CodeInvalidTimeInput, fmt.Sprintf("unknown timezone %q", name))
	}
	locMu.Lock()
	loc = l
	locMu.Unlock()
	return nil
}

// FromUnix formats a Unix value as the canonical string. Values at or above
// 1e10 are interpreted as milliseconds, everything else as seconds.
func FromUnix(n int64) string {
	if n >= millisThreshold || n <= -millisThreshold {
		return time.UnixMilli(n).In(location()).Format(Layout)
	}
	return time.Unix(n, 0).In(location()).Format(Layout)
}

// FromTime formats a native time value as the canonical string
func FromTime(t time.Time) string {
	return t.In(location()).Format(Layout)
}

// Now returns the current wall-clock time as the canonical string
func Now() string {
	return FromTime(time.Now())
}

// Canonical converts any supported input into the canonical string.
// Supported inputs: Unix seconds or milliseconds as integer kinds, a
// time.Time, a numeric string, or a string already in canonical form.
func Canonical(v interface{}) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", types.NewServiceError(types.CodeInvalidTimeInput, "time input is nil")
	case time.Time:
		return FromTime(x), nil
	case int64:
		return FromUnix(x), nil
	case int:
		return FromUnix(int64(x)), nil
	case uint64:
		return FromUnix(int64(x)), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return "", types.NewServiceError(types.CodeInvalidTimeInput, "time input is empty")
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return FromUnix(n), nil
		}
		if err := Validate(s); err != nil {
			return "", err
		}
		return s, nil
	default:
		return "", types.NewServiceError(types.CodeInvalidTimeInput, fmt.Sprintf("unsupported time input type %T", v))
	}
}

// Validate checks that s matches the canonical layout and names a real
// calendar instant (2023-02-30 is rejected even though it matches the regex).
func Validate(s string) error {
	if !canonicalRegex.MatchString(s) {
		return types.NewServiceError(types.CodeInvalidTimeInput, fmt.Sprintf("timestamp %q does not match canonical form", s))
	}
	if _, err := time.ParseInLocation(Layout, s, location()); err != nil {
		return types.NewServiceError(types.CodeInvalidTimeInput, fmt.Sprintf("timestamp %q is not a valid instant", s))
	}
	return nil
}

// Parse parses a canonical string into a time.Time in the display zone
func Parse(s string) (time.Time, error) {
	if err := Validate(s); err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(Layout, s, location())
	if err != nil {
		return time.Time{}, types.NewServiceError(types.CodeInvalidTimeInput, err.Error())
	}
	return t, nil
}
