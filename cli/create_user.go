package cli

import (
	"github.com/spf13/cobra"

	"supportdesk_back/authorization"
)

var userParams authorization.CreateUserParams

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an admin or client account",
	Long: `Creates a login account. Clients must belong to a tenant; admins
must not.`,
	RunE: runCreateUser,
}

func init() {
	flags := createUserCmd.Flags()
	flags.StringVar(&userParams.Username, "username", "", "login name")
	flags.StringVar(&userParams.Password, "password", "", "initial password")
	flags.StringVar(&userParams.DisplayName, "display-name", "", "optional display name")
	flags.StringVar(&userParams.Role, "role", authorization.RoleClient, "admin or client")
	flags.StringVar(&userParams.TenantID, "tenant", "", "tenant id for client accounts")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createUserCmd)
}

func runCreateUser(cmd *cobra.Command, _ []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	module, err := authorization.NewModuleFromEnv(db)
	if err != nil {
		return err
	}
	user, err := module.Auth().CreateUser(cmd.Context(), userParams)
	if err != nil {
		return err
	}
	cmd.Printf("created %s user %q (id %d)\n", user.Role, user.Username, user.ID)
	return nil
}
