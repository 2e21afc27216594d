package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// WhisperCLI runs the openai-whisper command line tool on each segment
type WhisperCLI struct {
	Command  string
	Model    string
	ModelDir string
}

// NewWhisperCLI creates an engine for the given binary and model
func NewWhisperCLI(command, model, modelDir string) *WhisperCLI {
	if command == "" {
		command = "whisper"
	}
	if model == "" {
		model = "small"
	}
	return &WhisperCLI{Command: command, Model: model, ModelDir: modelDir}
}

// Ready reports whether the binary is installed and, when a model directory
// is configured, the model file is present.
func (w *WhisperCLI) Ready() bool {
	if _, err := exec.LookPath(w.Command); err != nil {
		slog.Debug("Whisper binary not found", "command", w.Command, "error", err)
		return false
	}
	if w.ModelDir != "" {
		model := filepath.Join(w.ModelDir, w.Model+".pt")
		if _, err := os.Stat(model); err != nil {
			slog.Debug("Whisper model not installed", "model", model)
			return false
		}
	}
	return true
}

// Transcribe runs whisper on audioPath and returns the plain text output
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "whispernote-whisper-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir for whisper: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	args := w.args(audioPath, language, tmpDir)
	slog.Debug("Running whisper", "command", w.Command, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, w.Command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("whisper failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	// whisper writes <audio basename>.txt into the output directory
	base := filepath.Base(audioPath)
	txtFile := filepath.Join(tmpDir, strings.TrimSuffix(base, filepath.Ext(base))+".txt")

	content, err := os.ReadFile(txtFile)
	if err != nil {
		return "", fmt.Errorf("failed to read whisper output file: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

func (w *WhisperCLI) args(audioPath, language, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", w.Model,
		"--output_dir", outputDir,
		"--output_format", "txt",
		"--verbose", "False",
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	if w.ModelDir != "" {
		args = append(args, "--model_dir", w.ModelDir)
	}
	return args
}
