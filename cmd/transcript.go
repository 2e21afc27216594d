package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/whispernote/internal/storage"

	"github.com/spf13/cobra"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Show, edit and export transcripts",
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Print the transcript of a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		text, err := svc.Transcript(args[0])
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

var transcriptEditCmd = &cobra.Command{
	Use:   "edit [key]",
	Short: "Edit the transcript of a recording",
	Long: `Open the transcript in $EDITOR and save the result. With --file the
text is read from a file instead, or from stdin when the file is "-".

Saving an edited transcript marks the recording as completed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		svc, err := newService()
		if err != nil {
			return err
		}

		fromFile, _ := cmd.Flags().GetString("file")
		var text string
		if fromFile != "" {
			text, err = readTextSource(fromFile)
		} else {
			current, loadErr := svc.Transcript(key)
			if loadErr != nil && !errors.Is(loadErr, storage.ErrNotFound) {
				return loadErr
			}
			text, err = editInEditor(current)
		}
		if err != nil {
			return err
		}

		rec, err := svc.SaveEditedTranscript(key, text)
		if err != nil {
			return err
		}
		fmt.Printf("Saved transcript of %s (%s)\n", rec.Filename, rec.Status.DisplayName())
		return nil
	},
}

var transcriptExportCmd = &cobra.Command{
	Use:   "export [key]",
	Short: "Export a transcript as shareable text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		text, err := svc.ExportText(args[0])
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			fmt.Print(text)
			return nil
		}
		if err := os.WriteFile(output, []byte(text), 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Printf("Exported to %s\n", output)
		return nil
	},
}

func readTextSource(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read transcript text: %w", err)
	}
	return string(data), nil
}

// editInEditor writes text to a temp file, opens $EDITOR on it and returns
// the edited content
func editInEditor(text string) (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "nano"
	}

	tmp, err := os.CreateTemp("", "whispernote-transcript-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	// EDITOR may carry arguments, e.g. "code --wait"
	parts := strings.Fields(editor)
	c := exec.Command(parts[0], append(parts[1:], tmp.Name())...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("editor %s failed: %w", editor, err)
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("failed to read edited transcript: %w", err)
	}
	return string(data), nil
}

func init() {
	transcriptEditCmd.Flags().String("file", "", `read the new transcript from a file ("-" for stdin)`)
	transcriptExportCmd.Flags().StringP("output", "o", "", "write the export to a file instead of stdout")

	transcriptCmd.AddCommand(transcriptShowCmd)
	transcriptCmd.AddCommand(transcriptEditCmd)
	transcriptCmd.AddCommand(transcriptExportCmd)
}
