package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old recordings",
	Long: `Delete recordings captured more than --days days ago (retention.days by
default). Use --dry-run to see what would be removed and how much space it
would free.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days == 0 {
			days = cfg.Retention.Days
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		svc, err := newService()
		if err != nil {
			return err
		}
		report, err := svc.Cleanup(days, dryRun)
		if err != nil {
			return err
		}

		for _, r := range report.Candidates {
			fmt.Printf("  %s  %s\n", r.RecordedAt.Local().Format("2006-01-02"), r.Filename)
		}
		fmt.Println(report.Summary())
		for _, f := range report.Failures {
			fmt.Printf("  failed %s: %s\n", f.Key, f.Err)
		}
		if len(report.Failures) > 0 {
			return fmt.Errorf("%d recordings could not be deleted", len(report.Failures))
		}
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show storage usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		usage, err := svc.Usage()
		if err != nil {
			return err
		}

		fmt.Printf("Data directory: %s\n", cfg.Data.Directory)
		fmt.Printf("Recordings:     %s\n", humanize.Comma(int64(usage.Recordings)))
		fmt.Printf("Used:           %s\n", usage.BytesHuman)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Int("days", 0, "delete recordings older than this many days (default retention.days)")
	cleanupCmd.Flags().Bool("dry-run", false, "only report what would be deleted")
}
