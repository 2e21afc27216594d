package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename [key] [new-name]",
	Short: "Rename a recording",
	Long:  `Rename a recording. Its audio, transcript and metadata are moved to the new name; nothing is moved when the name is already taken.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		rec, err := svc.Rename(args[0], args[1])
		if err != nil {
			return fmt.Errorf("rename failed: %w", err)
		}
		fmt.Printf("Renamed %s to %s\n", args[0], rec.Filename)
		return nil
	},
}
