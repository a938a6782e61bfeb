package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"supportdesk_back/agentconfig"
)

var (
	importTenant string
	importDryRun bool
)

var importConfigCmd = &cobra.Command{
	Use:   "import-config <file>",
	Short: "Migrate a legacy agent config file",
	Long: `Reads a historical agent config (JSON or YAML, flat or with a nested
"rules" object), converts it to the current schema and saves it. The tenant
comes from --tenant or from the file's tenantId.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportConfig,
}

func init() {
	importConfigCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant id, overrides the file")
	importConfigCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "print the converted config without saving")
	rootCmd.AddCommand(importConfigCmd)
}

func runImportConfig(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	cfg, err := agentconfig.DecodeLegacy(data, importTenant)
	if err != nil {
		return err
	}
	if importDryRun {
		printConfig(cmd, cfg)
		return nil
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	store, client := configStore(cmd.Context(), db)
	if client != nil {
		defer client.Close()
	}
	if err := saveConfig(cmd.Context(), store, cfg); err != nil {
		return err
	}
	printConfig(cmd, cfg)
	return nil
}

func saveConfig(ctx context.Context, store agentconfig.Store, cfg *agentconfig.Config) error {
	if err := store.Put(ctx, cfg); err != nil {
		return fmt.Errorf("save config for %s: %w", cfg.TenantID, err)
	}
	return nil
}

func printConfig(cmd *cobra.Command, cfg *agentconfig.Config) {
	cmd.Printf("tenant:            %s\n", cfg.TenantID)
	cmd.Printf("company:           %s\n", cfg.CompanyName)
	cmd.Printf("tone:              %s\n", cfg.Tone)
	cmd.Printf("empathy:           %t\n", cfg.EmpathyEnabled)
	cmd.Printf("discounts:         %t (max %.2f)\n", cfg.AllowDiscount, cfg.MaxDiscountAmount)
	cmd.Printf("default language:  %s\n", cfg.DefaultLanguage)
	cmd.Printf("signature:         %q\n", cfg.Signature)
}
