package main

import (
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tn3270d/internal/emulator"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment the bridge depends on",
	Run: func(cmd *cobra.Command, args []string) {
		override := viper.GetString("s3270_path")

		path, err := emulator.FindExecutable(override)
		if err != nil {
			cmd.Println("s3270:        NOT FOUND")
			cmd.Printf("              %v\n", err)
			cmd.Println("              install x3270/s3270 or set s3270_path")
		} else {
			cmd.Printf("s3270:        %s\n", path)
			if out, err := exec.Command(path, "-v").CombinedOutput(); err == nil {
				if line, _, ok := strings.Cut(string(out), "\n"); ok {
					cmd.Printf("version:      %s\n", strings.TrimSpace(line))
				}
			}
		}

		cmd.Printf("listen_addr:  %s\n", viper.GetString("listen_addr"))
		cmd.Printf("store:        %s (%s)\n", viper.GetString("store.type"), viper.GetString("store.dsn"))
		cmd.Printf("output_dir:   %s\n", viper.GetString("output_dir"))
		cmd.Printf("session_ttl:  %ds\n", viper.GetInt("session_ttl_seconds"))
		if rules := viper.GetString("rules_file"); rules != "" {
			cmd.Printf("rules_file:   %s\n", rules)
		} else {
			cmd.Println("rules_file:   (embedded defaults)")
		}
		if viper.GetBool("notifications.slack.enabled") {
			cmd.Printf("slack:        enabled, channel %s\n", viper.GetString("notifications.slack.channel"))
		} else {
			cmd.Println("slack:        disabled")
		}
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
