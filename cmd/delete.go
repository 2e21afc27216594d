package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [key...]",
	Aliases: []string{"rm"},
	Short:   "Delete recordings",
	Long:    `Delete recordings together with their transcripts and metadata. Every key is attempted even if an earlier one fails.`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}

		var errs []error
		for _, key := range args {
			if err := svc.Delete(key); err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Printf("Deleted %s\n", key)
		}
		return errors.Join(errs...)
	},
}
