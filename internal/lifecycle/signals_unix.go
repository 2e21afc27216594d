//go:build unix

package lifecycle

import (
	"os"
	"syscall"
)

// DefaultSignals returns SIGUSR1 for entering background and SIGUSR2 for
// entering foreground.
func DefaultSignals() (background, foreground os.Signal) {
	return syscall.SIGUSR1, syscall.SIGUSR2
}
