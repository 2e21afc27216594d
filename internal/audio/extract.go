package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// Extractor cuts time ranges out of an audio file into temporary segments
// suitable for speech recognition (mono 16 kHz WAV).
type Extractor struct {
	TempDir string
}

// NewExtractor creates an extractor writing segments under tempDir, or the
// system temp directory when empty.
func NewExtractor(tempDir string) *Extractor {
	return &Extractor{TempDir: tempDir}
}

// ExtractRange writes [start, end) of path to a new temporary file and
// returns its path. The caller owns the file.
func (e *Extractor) ExtractRange(ctx context.Context, path string, start, end float64) (string, error) {
	if end <= start {
		return "", fmt.Errorf("invalid range [%v, %v)", start, end)
	}

	tmp, err := os.CreateTemp(e.TempDir, "whispernote-segment-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create segment file: %w", err)
	}
	out := tmp.Name()
	tmp.Close()

	args := segmentArgs(path, out, start, end)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg segment extraction failed: %w (output: %s)", err, string(output))
	}

	slog.Debug("Extracted audio segment", "source", path, "start", start, "end", end, "segment", out)
	return out, nil
}

func segmentArgs(path, out string, start, end float64) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(start),
		"-i", path,
		"-t", formatSeconds(end - start),
		"-ac", "1", "-ar", "16000",
		"-c:a", "pcm_s16le",
		"-y", out,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
