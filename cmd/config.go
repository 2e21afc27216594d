package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/audiolibrelab/whispernote/internal/config"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage WhisperNote configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Print the resolved configuration. With a profile active, every value is marked as inherited from the base or profile-specific.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		if cfg.Profile != "" {
			fmt.Printf("# profile: %s\n", cfg.Profile)
		}
		fmt.Print(string(out))

		if cfg.Inheritance == nil {
			return nil
		}
		fmt.Printf("\n# inheritance\n")
		keys := make([]string, 0, len(cfg.Inheritance.Fields))
		for key := range cfg.Inheritance.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("# %-32s %s\n", key, getInheritanceIndicator(cfg.Inheritance.Source(key)))
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [profile]",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateActiveProfile(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active profile set to %s\n", args[0])
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "nano"
		}

		configPath := cfgFile
		if configPath == "" {
			configPath = config.DefaultPath()
		}
		fmt.Printf("Opening %s with %s...\n", configPath, editor)

		c := exec.Command(editor, configPath)
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("editor %s failed: %w", editor, err)
		}

		// Report mistakes right away instead of on the next command
		if _, err := config.Load(configPath, profile); err != nil {
			return fmt.Errorf("configuration is no longer valid: %w", err)
		}
		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case config.Inherited:
		return "[inherited]"
	case config.ProfileSpecific:
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configEditCmd)
}
