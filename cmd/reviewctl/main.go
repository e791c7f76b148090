// Command reviewctl is the operator CLI for review orders and credit grants.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"example/resume-api/app"
	"example/resume-api/app/config"
	"example/resume-api/app/reconcile"
	"example/resume-api/app/store"

	"github.com/spf13/cobra"
)

var Version = "dev"

// opener builds the service a command runs against.
type opener func(ctx context.Context) (*reconcile.Service, func(), error)

func main() {
	if err := newRootCmd(openPostgres).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reviewctl",
		Short:         "Operate human review orders and customer credits",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(reviewsCmd(open))
	rootCmd.AddCommand(submissionsCmd(open))
	rootCmd.AddCommand(creditsCmd(open))
	rootCmd.AddCommand(entitlementCmd(open))
	rootCmd.AddCommand(statsCmd(open))
	return rootCmd
}

// openPostgres runs operator commands against the production database. The
// in-memory store would not outlive the command.
func openPostgres(ctx context.Context) (*reconcile.Service, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.DB.Enabled() {
		return nil, nil, errors.New("POSTGRES_URL must be set")
	}
	d, err := app.OpenDB(ctx, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	docs, err := app.NewDocumentStore(ctx, cfg.Storage)
	if err != nil {
		d.Close()
		return nil, nil, err
	}
	notifier, err := app.NewNotifier(ctx, cfg.Queue)
	if err != nil {
		d.Close()
		return nil, nil, err
	}
	svc := reconcile.New(store.NewPostgres(d), nil, nil, docs, notifier, app.ServiceOptions(cfg))
	return svc, func() { d.Close() }, nil
}

func run(cmd *cobra.Command, open opener, fn func(ctx context.Context, svc *reconcile.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}
