// Package ids produces opaque, time-sortable identifiers.
package ids

import "github.com/segmentio/ksuid"

// New returns a new 27 character KSUID string.
func New() string {
	return ksuid.New().String()
}

// Valid reports whether s parses as a KSUID.
func Valid(s string) bool {
	_, err := ksuid.Parse(s)
	return err == nil
}
