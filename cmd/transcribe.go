package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/whispernote/internal/transcribe"

	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [key...]",
	Short: "Transcribe recordings",
	Long: `Queue recordings for transcription and process them in order.

With keys, those recordings are transcribed. --all queues every pending
recording and --retry-failed every failed one. Recordings interrupted by a
crash are marked failed first, so --retry-failed picks them up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		retry, _ := cmd.Flags().GetBool("retry-failed")
		if len(args) == 0 && !all && !retry {
			return fmt.Errorf("specify recording keys, --all or --retry-failed")
		}

		// Queueing is explicit here
		cfg.Transcription.AutoTranscribe = false
		svc, err := newService()
		if err != nil {
			return err
		}
		if !svc.GetPipelineStatus().Ready {
			return fmt.Errorf("%w: check transcription.command and transcription.model", transcribe.ErrEngineNotReady)
		}

		report, err := svc.Reconcile()
		if err != nil {
			return err
		}
		if report.Recovered > 0 {
			fmt.Printf("Marked %d interrupted recordings as failed\n", report.Recovered)
		}

		queued := 0
		if len(args) > 0 {
			n, err := svc.Transcribe(args...)
			if err != nil {
				return err
			}
			queued += n
		}
		if all {
			n, err := svc.TranscribePending()
			if err != nil {
				return err
			}
			queued += n
		}
		if retry {
			n, err := svc.RetryFailed()
			if err != nil {
				return err
			}
			queued += n
		}

		if queued == 0 {
			fmt.Println("Nothing to transcribe")
			return nil
		}
		fmt.Printf("Transcribing %d recordings\n", queued)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return reportResults(svc.Drain(ctx))
	},
}

// reportResults prints one line per processed recording and returns an
// error when any of them failed
func reportResults(results []transcribe.Result) error {
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("  failed     %s: %v\n", res.Recording.Filename, res.Err)
			errs = append(errs, fmt.Errorf("%s: %w", res.Recording.Filename, res.Err))
			continue
		}
		fmt.Printf("  completed  %s\n", res.Recording.Filename)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d transcriptions failed: %w", len(errs), len(results), errors.Join(errs...))
	}
	return nil
}

func init() {
	transcribeCmd.Flags().Bool("all", false, "transcribe every pending recording")
	transcribeCmd.Flags().Bool("retry-failed", false, "retry every failed recording")
}
