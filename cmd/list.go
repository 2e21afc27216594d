package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/dustin/go-humanize"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings",
	Long:    `List all recordings, newest first by default. Use --sort duration or --sort size to order by length or file size.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sortFlag, _ := cmd.Flags().GetString("sort")
		sortBy, err := recording.ParseSortOption(sortFlag)
		if err != nil {
			return err
		}

		svc, err := newService()
		if err != nil {
			return err
		}
		recs, err := svc.List(sortBy)
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No recordings")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tRECORDED\tDURATION\tSIZE\tLANG\tSTATUS")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Filename,
				humanize.Time(r.RecordedAt),
				recording.FormatDuration(r.Duration),
				humanize.Bytes(uint64(r.FileSize)),
				r.Language,
				r.Status.DisplayName(),
			)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().String("sort", "date", "sort order: date, duration, size")
}
