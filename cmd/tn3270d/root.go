package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tn3270d/internal/config"
)

var exit = os.Exit
var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tn3270d",
	Short: "HTTP bridge to IBM mainframes via s3270",
	Long: `tn3270d exposes terminal-oriented mainframe access over HTTP by driving
one s3270 scripting-mode subprocess per session: login, screen reads,
commands, JCL submission, job tracking, and IND$FILE transfers.`,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n=== CRITICAL ERROR: Command Execution Panic ===\n")
			fmt.Fprintf(os.Stderr, "Error: %v\n", r)
			exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'tn3270d --help' for usage.")
		exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() { config.Load(cfgFile) })

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("listen", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().String("s3270", "", "Path to the s3270 executable (overrides discovery)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen"))
	viper.BindPFlag("s3270_path", rootCmd.PersistentFlags().Lookup("s3270"))

	// Bare invocation serves.
	rootCmd.RunE = runServe
}
