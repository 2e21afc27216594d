package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/whispernote/internal/config"
	"github.com/audiolibrelab/whispernote/internal/service"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Transcribe recordings in the background",
	Long: `Run the transcription queue until interrupted.

On start, recordings left processing by a crash are marked failed and
pending ones are queued. The data directory is then rescanned every
--scan-interval for new pending recordings, for example ones saved by a
separate 'whispernote record'. With retention enabled, cleanup runs on
retention.schedule.

Changes to transcription.auto_transcribe in the config file take effect
without a restart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("scan-interval")
		if interval <= 0 {
			return fmt.Errorf("scan interval must be positive, got: %s", interval)
		}

		svc, err := newService()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := svc.Reconcile()
		if err != nil {
			return err
		}
		slog.Info("Daemon started", "recovered", report.Recovered, "queued", report.Enqueued, "scan_interval", interval)

		if err := svc.StartRetention(ctx); err != nil {
			return err
		}

		if err := config.Watch(cfgFile, profile, func(c *config.Config) {
			svc.SetAutoTranscribe(c.Transcription.AutoTranscribe)
		}); err != nil {
			slog.Warn("Config changes will not be picked up", "error", err)
		}

		go svc.RunPipeline(ctx)
		scanPending(ctx, svc, interval)

		slog.Info("Daemon stopped")
		return nil
	},
}

// scanPending periodically queues pending recordings while auto
// transcription is enabled
func scanPending(ctx context.Context, svc service.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !svc.AutoTranscribe() {
				continue
			}
			if !svc.GetPipelineStatus().Ready {
				slog.Debug("Transcription engine not ready, skipping scan")
				continue
			}
			n, err := svc.TranscribePending()
			if err != nil {
				slog.Warn("Scan for pending recordings failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("Queued pending recordings", "count", n)
			}
		}
	}
}

func init() {
	daemonCmd.Flags().Duration("scan-interval", time.Minute, "how often to look for new pending recordings")
}
