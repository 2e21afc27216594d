//go:build unix

package audio

import (
	"fmt"
	"os"
	"syscall"
)

func suspendProcess(p *os.Process) error {
	if err := p.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("failed to suspend FFmpeg: %w", err)
	}
	return nil
}

func resumeProcess(p *os.Process) error {
	if err := p.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("failed to resume FFmpeg: %w", err)
	}
	return nil
}
