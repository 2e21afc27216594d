package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/audiolibrelab/whispernote/internal/audio"
	"github.com/audiolibrelab/whispernote/internal/lifecycle"
	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/audiolibrelab/whispernote/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record audio until interrupted",
	Long: `Record audio from the configured input until Ctrl+C is pressed.

The recording is saved as pending under the data directory. When
transcription.auto_transcribe is enabled it is transcribed right after it
has been saved, unless --no-transcribe is given.

SIGUSR1 tells the recorder the process is about to be suspended: the
session is then saved within background.grace_seconds unless SIGUSR2
arrives first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		noTranscribe, _ := cmd.Flags().GetBool("no-transcribe")
		if noTranscribe {
			cfg.Transcription.AutoTranscribe = false
		}

		svc, err := newService()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		background, foreground := lifecycle.DefaultSignals()
		go lifecycle.NewNotifier(background, foreground).Run(ctx, svc)

		if err := svc.StartRecording(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording started - Press Ctrl+C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		if forced := waitForStop(ctx, svc, sigChan); forced {
			slog.Warn("Recording was saved after the background grace period")
		} else {
			slog.Info("Stopping recording...")
		}

		rec, err := svc.StopRecording()
		if err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}
		if rec != nil {
			fmt.Printf("Saved %s (%s)\n", rec.Filename, recording.FormatDuration(rec.Duration))
		}

		if svc.GetPipelineStatus().Queued == 0 {
			return nil
		}

		// A second Ctrl+C abandons the transcription; the recording stays pending
		drainCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return reportResults(svc.Drain(drainCtx))
	},
}

// waitForStop shows a live status line until an interrupt arrives or a
// forced background save ends the session. It reports whether the session
// was ended by the forced save.
func waitForStop(ctx context.Context, svc service.Service, sigChan <-chan os.Signal) bool {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	defer fmt.Fprint(os.Stderr, "\n")

	for {
		select {
		case <-ctx.Done():
			return false
		case <-sigChan:
			return false
		case <-ticker.C:
			status := svc.GetRecordingStatus()
			if status.State == audio.StateStopped {
				return true
			}
			fmt.Fprintf(os.Stderr, "\r%-9s %s %s", status.State,
				recording.FormatDuration(status.Elapsed.Seconds()), levelMeter(status.Level, 20))
		}
	}
}

// levelMeter renders a 0..1 level as a fixed width bar
func levelMeter(level float64, width int) string {
	filled := int(level*float64(width) + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", width-filled) + "]"
}

func init() {
	recordCmd.Flags().Bool("no-transcribe", false, "do not transcribe the recording after it is saved")
}
