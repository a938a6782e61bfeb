// Package cli is the supportdesk command line: the HTTP server plus the
// operational commands run from cron or by hand.
package cli

import (
	"github.com/spf13/cobra"

	"supportdesk_back/config"
	"supportdesk_back/logging"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "supportdesk",
	Short:         "Multi-tenant support desk backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if envFile != "" {
			config.Load(envFile)
		} else {
			config.Load()
		}
		logging.Setup(logging.ConfigFromEnv())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
}

// Execute runs the command named by os.Args.
func Execute() error {
	return rootCmd.Execute()
}
