package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/audiolibrelab/whispernote/internal/audio"
	"github.com/audiolibrelab/whispernote/internal/config"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the audio sources that can be used as audio.source for the configured backend (PulseAudio/PipeWire by default, or JACK ports).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, _ := cmd.Flags().GetString("backend")
		if backend == "" {
			backend = config.BackendPulse
			if cfg != nil {
				backend = cfg.Audio.Backend
			} else if loaded, err := config.Load("", profile); err == nil {
				backend = loaded.Audio.Backend
			} else {
				slog.Warn("Could not load configuration, using PulseAudio backend", "error", err)
			}
		}
		return listAvailableSources(backend)
	},
}

// listAvailableSources lists capture sources for backend
func listAvailableSources(backend string) error {
	fmt.Printf("Audio Sources (%s, %s)\n", backend, runtime.GOOS)
	fmt.Printf("=======================================\n\n")

	if backend != config.BackendPulse && backend != config.BackendJack {
		fmt.Printf("Listing is not supported for the %s backend.\n", backend)
		fmt.Printf("See ffmpeg -sources %s\n", backend)
		return nil
	}

	sources, err := audio.NewPipeWire().ListSources(backend)
	if err != nil {
		return fmt.Errorf("failed to get %s sources: %w", backend, err)
	}

	fmt.Printf("%d found:\n", len(sources))
	for i, source := range sources {
		fmt.Printf("  %d. %s\n", i+1, source)
	}

	fmt.Printf("\nUsage:\n")
	if backend == config.BackendJack {
		fmt.Printf("  audio.source: comma separated ports, one per channel\n")
		fmt.Printf("  Example: \"system:capture_1,system:capture_2\"\n\n")
	} else {
		fmt.Printf("  audio.source: a source name from the list, or \"default\"\n\n")
	}
	return nil
}

func init() {
	sourcesCmd.Flags().String("backend", "", "backend to list (pulse or jack, default from config)")
}
