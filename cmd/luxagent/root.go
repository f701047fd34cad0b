package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	profile    string
)

// rootCmd runs the agent when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "luxagent",
	Short: "Direct sunlight exposure monitor",
	Long: `luxagent samples a BH1750 light sensor at a fixed cadence, classifies each
reading as direct sunlight or not, and reports the accumulated direct exposure
once the measurement window ends. Progress is mirrored to one telnet session.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAgent,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "luxagent version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/luxmon/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Embedded device profile applied under the file (e.g. host)")
	rootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
