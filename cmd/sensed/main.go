// Command sensed runs the ambient-perception capture pipeline: it watches
// the screen, extracts semantic events, and ships them to a remote relay
// over WebSocket or HTTP.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	controlFile string
	useWS       bool
	noWS        bool
)

var rootCmd = &cobra.Command{
	Use:           "sensed",
	Short:         "Ambient screen-perception agent",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSensed()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a JSON config override file")
	rootCmd.PersistentFlags().StringVar(&controlFile, "control", "", "path to the enable/disable control file")
	rootCmd.PersistentFlags().BoolVar(&useWS, "use-websocket", false, "force WebSocket egress transport")
	rootCmd.PersistentFlags().BoolVar(&noWS, "no-websocket", false, "force HTTP egress transport")

	rootCmd.AddCommand(profileCmd)
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level failure to an exit code: 1 for an
// unrecoverable config error, 2 for an unrecoverable capture error, 1 for
// anything else that reached main uncaught.
func exitCodeFor(err error) int {
	switch {
	case errIsConfig(err):
		return 1
	case errIsCapture(err):
		return 2
	default:
		return 1
	}
}
