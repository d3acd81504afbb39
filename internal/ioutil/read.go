// Package ioutil has small I/O helpers shared across the module.
package ioutil

import (
	"fmt"
	"io"
)

// ReadLimited reads at most limit bytes from r and returns them as a string.
// A read failure is reported in the returned string rather than dropped, so
// upstream response bodies can always be quoted in error messages.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}
