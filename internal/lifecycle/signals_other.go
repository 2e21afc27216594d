//go:build !unix

package lifecycle

import "os"

// DefaultSignals returns nil signals; lifecycle notifications are not
// available on this platform.
func DefaultSignals() (background, foreground os.Signal) {
	return nil, nil
}
