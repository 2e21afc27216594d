package audio

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// FFprobe reads container metadata with the ffprobe binary
type FFprobe struct {
	Binary string
}

// NewFFprobe creates a prober using ffprobe from PATH
func NewFFprobe() *FFprobe {
	return &FFprobe{Binary: "ffprobe"}
}

// Duration returns the container duration of path in seconds
func (p *FFprobe) Duration(path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("audio file not found: %s", path)
	}

	cmd := exec.Command(p.Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	duration, err := parseProbeDuration(output)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}

	slog.Debug("Probed audio duration", "path", path, "duration", duration)
	return duration, nil
}

func parseProbeDuration(output []byte) (float64, error) {
	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return 0, err
	}
	if probeResult.Format.Duration == "" {
		return 0, fmt.Errorf("no duration in container format")
	}

	duration, err := strconv.ParseFloat(probeResult.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", probeResult.Format.Duration, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("negative duration %v", duration)
	}
	return duration, nil
}
