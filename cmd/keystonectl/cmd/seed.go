package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keystone-admin/keystone/internal/app"
	"github.com/keystone-admin/keystone/internal/platform/db"
)

var adminPasswordFlag string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install default scopes, system roles and the admin account",
	Long: `Seed creates the user/role/scope read, write and delete scopes, the
admin, user and moderator system roles, and the admin account when absent.
Running it again changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.StoreDriver != app.StoreDriverPostgres {
			return fmt.Errorf("seed needs STORE_DRIVER=%s", app.StoreDriverPostgres)
		}
		if adminPasswordFlag != "" {
			cfg.SeedAdminPassword = adminPasswordFlag
		}

		ctx := cmd.Context()
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()

		container, err := app.Build(app.Options{
			Config:  cfg,
			Logger:  app.NewLogger(cfg),
			Backend: app.PostgresBackend(pool),
		})
		if err != nil {
			return err
		}
		res, err := container.Seed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scopes: %d\nroles: %d\nadmin: %s (created: %t)\n",
			res.Scopes, res.Roles, res.AdminID, res.AdminCreated)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&adminPasswordFlag, "admin-password", "", "password for a newly created admin (default SEED_ADMIN_PASSWORD)")
}
