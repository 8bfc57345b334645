package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrMissingKey is matched by every MissingKeyError.
var ErrMissingKey = errors.New("missing required configuration key")

// MissingKeyError reports a required key that has no value.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return "missing required property " + e.Key
}

// Is reports whether target is ErrMissingKey.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// InvalidValueError reports a key whose value cannot be converted.
type InvalidValueError struct {
	Key   string
	Value string
	Cause error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Key, e.Cause)
}

func (e *InvalidValueError) Unwrap() error {
	return e.Cause
}

// Provider is a flat key to string lookup. Keys are dot separated.
type Provider interface {
	Get(key string) (string, bool)
	Required(key string) (string, error)
	// GetDuration parses Go durations ("1.5s") or bare integers as
	// milliseconds. Unset keys return def.
	GetDuration(key string, def time.Duration) (time.Duration, error)
	GetInt(key string, def int) (int, error)
	// Keys returns every key in sorted order.
	Keys() []string
}

// Map is a Provider backed by a map.
type Map map[string]string

// Get returns the value for key.
func (m Map) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Required returns the trimmed value for key or a *MissingKeyError when it
// is unset or blank.
func (m Map) Required(key string) (string, error) {
	return required(m, key)
}

// GetDuration returns the duration stored at key.
func (m Map) GetDuration(key string, def time.Duration) (time.Duration, error) {
	return duration(m, key, def)
}

// GetInt returns the integer stored at key.
func (m Map) GetInt(key string, def int) (int, error) {
	return integer(m, key, def)
}

// Keys returns the sorted keys.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sub returns a view of p containing only keys under prefix, with the prefix
// and its trailing dot removed.
func Sub(p Provider, prefix string) Provider {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return p
	}
	return &subProvider{parent: p, prefix: prefix + "."}
}

// Scoped is Sub with inheritance: a key unset under prefix is read from
// the unprefixed key of p. Keys still lists the prefixed keys only.
func Scoped(p Provider, prefix string) Provider {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return p
	}
	return &subProvider{parent: p, prefix: prefix + ".", inherit: true}
}

type subProvider struct {
	parent  Provider
	prefix  string
	inherit bool
}

// resolve returns the parent key holding key. Unset keys resolve to the
// prefixed form so errors name the component's own key.
func (s *subProvider) resolve(key string) string {
	if _, ok := s.parent.Get(s.prefix + key); ok || !s.inherit {
		return s.prefix + key
	}
	if _, ok := s.parent.Get(key); ok {
		return key
	}
	return s.prefix + key
}

func (s *subProvider) Get(key string) (string, bool) {
	return s.parent.Get(s.resolve(key))
}

func (s *subProvider) Required(key string) (string, error) {
	if v, ok := s.Get(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return "", &MissingKeyError{Key: s.prefix + key}
}

func (s *subProvider) GetDuration(key string, def time.Duration) (time.Duration, error) {
	return s.parent.GetDuration(s.resolve(key), def)
}

func (s *subProvider) GetInt(key string, def int) (int, error) {
	return s.parent.GetInt(s.resolve(key), def)
}

func (s *subProvider) Keys() []string {
	var keys []string
	for _, k := range s.parent.Keys() {
		if rest, ok := strings.CutPrefix(k, s.prefix); ok && rest != "" {
			keys = append(keys, rest)
		}
	}
	return keys
}

func required(p Provider, key string) (string, error) {
	if v, ok := p.Get(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return "", &MissingKeyError{Key: key}
}

func duration(p Provider, key string, def time.Duration) (time.Duration, error) {
	raw, ok := p.Get(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return def, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, &InvalidValueError{Key: key, Value: raw, Cause: err}
	}
	return d, nil
}

func integer(p Provider, key string, def int) (int, error) {
	raw, ok := p.Get(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, &InvalidValueError{Key: key, Value: raw, Cause: err}
	}
	return n, nil
}
