package cli

import (
	"github.com/spf13/cobra"

	"supportdesk_back/knowledge"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process one batch of pending ingest jobs",
	Long: `Claims and ingests up to WORKER_MAX_JOBS pending jobs, then exits.
Meant for cron when the HTTP worker endpoint is not used.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	service, err := knowledge.NewServiceFromEnv(db, knowledge.Deps{})
	if err != nil {
		return err
	}
	result := service.RunWorker(cmd.Context())
	cmd.Printf("processed %d job(s), %d error(s)\n", result.Processed, result.Errors)
	return nil
}
