// Newtrace - physical path tracer for SONiC fabrics
//
// Follows a target IP hop by hop from an entry switch, across redundancy
// pairs (MCLAG) and link aggregates, and snapshots the error counters of
// every interface on the path.
//
// Examples:
//
//	newtrace trace --from 10.0.0.1 --user admin --target 10.10.1.5
//	newtrace trace --target 10.10.1.5 --json trace.json --metrics /var/lib/node_exporter/newtrace.prom
//	newtrace settings set user admin
//	newtrace settings set start 10.0.0.1
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtrace/pkg/profile"
	"github.com/newtron-network/newtrace/pkg/settings"
	"github.com/newtron-network/newtrace/pkg/util"
	"github.com/newtron-network/newtrace/pkg/version"
)

var (
	// Global option flags
	profilePath string
	verbose     bool
	jsonLogs    bool

	// Global state
	userSettings *settings.Settings
	prof         *profile.Profile
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "newtrace",
	Short:             "Physical path tracer for SONiC fabrics",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Newtrace follows a target IP through the switching fabric, hop by hop,
and records the error counters of every physical interface it crosses.

  newtrace trace --from <switch> --user <user> --target <ip>`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set log level: quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if jsonLogs {
			util.SetJSONFormat()
		}

		if isSettingsOrHelp(cmd) {
			return nil
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		if profilePath == "" {
			profilePath = userSettings.ProfilePath
		}
		prof, err = profile.Load(util.ExpandHome(profilePath))
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&profilePath, "profile", "p", "", "Tracing profile (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log in JSON format")

	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("newtrace"))
	},
}

// isSettingsOrHelp reports whether cmd runs without a profile.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "help", "version":
			return true
		}
	}
	return false
}
