package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/handoff/internal/app"
	"github.com/Additional-Code/handoff/internal/migration"
	"github.com/Additional-Code/handoff/internal/seeder"
	"github.com/Additional-Code/handoff/internal/service/otp"
)

const stopTimeout = 10 * time.Second

// NewRootCommand builds the root handoff CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "handoff",
		Short:         "Order fulfillment handoff service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newOTPCmd())

	return root
}

// Execute runs the handoff CLI until the command finishes or the process
// is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP and gRPC health servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), app.Module)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(app.Infra, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			opts := fx.Options(app.Infra, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo accounts (one per role) and products",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			var seed *seeder.Seeder
			opts := fx.Options(app.Infra, seeder.Module, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := seed.Run(ctx, password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "seed data applied")
				return nil
			})
		},
	}
	cmd.Flags().String("password", "handoff-dev", "Password given to every seeded account")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Consume handoff events and sweep expired codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), app.Worker)
		},
	})
	return cmd
}

func newOTPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otp",
		Short: "Manage one-time codes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired one-time codes now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mgr *otp.Manager
			opts := fx.Options(app.Core, fx.Populate(&mgr))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				n, err := mgr.Purge(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired codes\n", n)
				return nil
			})
		},
	})
	return cmd
}

func runUntilDone(ctx context.Context, opts fx.Option) error {
	application := fx.New(opts)
	if err := application.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return application.Stop(stopCtx)
}

func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
