// Package cache remembers what was last written under each storage key so
// unchanged values are not rewritten.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// Entry is the fingerprint of the value last written under a key.
type Entry struct {
	Sum       string
	Timestamp time.Time
}

// Fingerprint returns the hex SHA-256 of value.
func Fingerprint(value string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(value)))
}

// Fingerprints is safe for concurrent use.
type Fingerprints struct {
	entries sync.Map // key -> Entry
}

// Changed reports whether value differs from what was last recorded for key.
func (f *Fingerprints) Changed(key, value string) bool {
	v, ok := f.entries.Load(key)
	if !ok {
		return true
	}
	return v.(Entry).Sum != Fingerprint(value)
}

// Record stores the fingerprint of value as written under key.
func (f *Fingerprints) Record(key, value string) {
	f.entries.Store(key, Entry{Sum: Fingerprint(value), Timestamp: time.Now()})
}

// Forget drops key so the next write is never skipped.
func (f *Fingerprints) Forget(key string) {
	f.entries.Delete(key)
}

// Reset forgets every key.
func (f *Fingerprints) Reset() {
	f.entries.Range(func(k, _ any) bool {
		f.entries.Delete(k)
		return true
	})
}
