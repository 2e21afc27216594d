package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/audiolibrelab/whispernote/internal/transcribe"
)

func TestLevelMeter(t *testing.T) {
	tests := []struct {
		level    float64
		expected string
	}{
		{0, "[     ]"},
		{0.5, "[###  ]"},
		{1, "[#####]"},
		{3, "[#####]"},
		{-1, "[     ]"},
	}
	for _, test := range tests {
		if got := levelMeter(test.level, 5); got != test.expected {
			t.Errorf("levelMeter(%v) = %q, expected %q", test.level, got, test.expected)
		}
	}
}

func TestReportResults(t *testing.T) {
	ok := transcribe.Result{Recording: recording.Recording{Filename: "a"}}
	if err := reportResults([]transcribe.Result{ok}); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	failed := transcribe.Result{Recording: recording.Recording{Filename: "b"}, Err: errors.New("boom")}
	err := reportResults([]transcribe.Result{ok, failed})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("Expected failure summary, got: %v", err)
	}
}

func TestInheritanceIndicator(t *testing.T) {
	if got := getInheritanceIndicator("inherited"); got != "[inherited]" {
		t.Errorf("Unexpected indicator %s", got)
	}
	if got := getInheritanceIndicator("profile-specific"); got != "[profile-specific]" {
		t.Errorf("Unexpected indicator %s", got)
	}
	if got := getInheritanceIndicator("base"); got != "[unknown]" {
		t.Errorf("Unexpected indicator %s", got)
	}
}

func TestCommandTree(t *testing.T) {
	for _, name := range []string{"record", "list", "transcribe", "rename", "delete", "transcript", "cleanup", "usage", "play", "sources", "config", "daemon"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %s to be registered", name)
		}
	}
}
