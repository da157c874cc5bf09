package types

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Params is the read-only configuration mapping injected into a test case.
// Values arrive as strings from the runbook; typed accessors convert on
// demand and report malformed values as errors rather than panicking.
type Params map[string]string

// Missing returns the sorted subset of keys that have no value
func (p Params) Missing(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := p[k]; !ok {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// Get returns the value for key, or def when the key is absent
func (p Params) Get(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int converts the value for key to an int
func (p Params) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("param %q is not set", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("param %q is not an integer: %q", key, v)
	}
	return n, nil
}

// Int64 converts the value for key to an int64
func (p Params) Int64(key string) (int64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("param %q is not set", key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("param %q is not an integer: %q", key, v)
	}
	return n, nil
}

// IntOr converts the value for key to an int, falling back to def when the
// key is absent. A present but malformed value is still an error.
func (p Params) IntOr(key string, def int) (int, error) {
	if _, ok := p[key]; !ok {
		return def, nil
	}
	return p.Int(key)
}

// Bool converts the value for key to a bool ("true"/"false")
func (p Params) Bool(key string) (bool, error) {
	v, ok := p[key]
	if !ok {
		return false, fmt.Errorf("param %q is not set", key)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("param %q is not a boolean: %q", key, v)
	}
	return b, nil
}

// DurationOr converts the value for key to a time.Duration, falling back to
// def when the key is absent
func (p Params) DurationOr(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("param %q is not a duration: %q", key, v)
	}
	return d, nil
}
