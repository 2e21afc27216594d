package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/audiolibrelab/whispernote/internal/config"
)

// commandRunner runs an external command and returns its stdout
type commandRunner func(name string, args ...string) ([]byte, error)

func execOutput(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// PipeWire queries capture sources through pw-link and pactl
type PipeWire struct {
	run        commandRunner
	retryDelay time.Duration
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{run: execOutput, retryDelay: 500 * time.Millisecond}
}

// ListSources returns the capture sources available to backend
func (pw *PipeWire) ListSources(backend string) ([]string, error) {
	switch backend {
	case config.BackendJack:
		return pw.ListPorts()
	case config.BackendPulse, "":
		return pw.listPulseSources()
	default:
		return nil, fmt.Errorf("listing sources is not supported for backend %q", backend)
	}
}

// ListPorts returns all JACK ports exposed by PipeWire
func (pw *PipeWire) ListPorts() ([]string, error) {
	output, err := pw.run("pw-link", "-io")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePortList(string(output)), nil
}

func parsePortList(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// listPulseSources returns source names from `pactl list short sources`
func (pw *PipeWire) listPulseSources() ([]string, error) {
	output, err := pw.run("pactl", "list", "short", "sources")
	if err != nil {
		return nil, fmt.Errorf("failed to list pulse sources: %w", err)
	}

	var sources []string
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			sources = append(sources, fields[1])
		}
	}
	return sources, nil
}

// ValidatePort checks that a port exists exactly once in the graph
func (pw *PipeWire) ValidatePort(portName string) error {
	if portName == "" || portName == "disabled" {
		return nil
	}

	ports, err := pw.ListPorts()
	if err != nil {
		return err
	}
	return validatePortInList(portName, ports)
}

func validatePortInList(portName string, ports []string) error {
	duplicates := findPortDuplicatesInList(portName, ports)
	if len(duplicates) == 0 {
		return fmt.Errorf("port not found: %s", portName)
	}
	if len(duplicates) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", portName, duplicates)
	}
	return nil
}

// findPortDuplicatesInList returns every entry with exactly portName
func findPortDuplicatesInList(portName string, ports []string) []string {
	var duplicates []string
	for _, port := range ports {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

func (pw *PipeWire) portExists(portName string) bool {
	ports, err := pw.ListPorts()
	if err != nil {
		slog.Debug("Failed to check port existence", "port", portName, "error", err)
		return false
	}
	return len(findPortDuplicatesInList(portName, ports)) > 0
}

// ConnectPortsWithRetry links sourcePort to destPort, waiting for either to
// appear. Application ports get a longer retry budget than hardware ones.
func (pw *PipeWire) ConnectPortsWithRetry(sourcePort, destPort string) error {
	maxRetries := 5
	retryDelay := pw.retryDelay
	if isEphemeralPort(sourcePort) {
		maxRetries = 15
		retryDelay = 2 * pw.retryDelay
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if pw.portExists(sourcePort) && pw.portExists(destPort) {
			_, err := pw.run("pw-link", sourcePort, destPort)
			if err == nil {
				slog.Debug("Connected ports", "source", sourcePort, "dest", destPort, "attempt", attempt)
				return nil
			}
			slog.Debug("Connection attempt failed", "source", sourcePort, "dest", destPort, "attempt", attempt, "error", err)
		} else {
			slog.Debug("Ports not yet available", "source", sourcePort, "dest", destPort, "attempt", attempt)
		}

		if attempt < maxRetries {
			time.Sleep(retryDelay)
		}
	}

	return fmt.Errorf("failed to connect %s to %s after %d attempts", sourcePort, destPort, maxRetries)
}

// isEphemeralPort reports whether a port belongs to an application that may
// come and go, such as a browser tab in a video call.
func isEphemeralPort(portName string) bool {
	lowerPort := strings.ToLower(portName)
	for _, app := range []string{"chrome", "firefox", "zoom", "teams", "slack", "discord", "meet", "webex"} {
		if strings.Contains(lowerPort, app) {
			return true
		}
	}
	return false
}
