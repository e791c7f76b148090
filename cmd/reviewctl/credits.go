package main

import (
	"context"
	"fmt"

	"example/resume-api/app/models"
	"example/resume-api/app/reconcile"

	"github.com/spf13/cobra"
)

func creditsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Manage customer credit pools",
	}

	var (
		pool   string
		amount int
	)
	grant := &cobra.Command{
		Use:   "grant [user-id]",
		Short: "Add credits to a user's pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *reconcile.Service) error {
				ent, err := svc.GrantCredits(ctx, args[0], models.CreditPool(pool), amount)
				if err != nil {
					return err
				}
				return writeEntitlement(cmd, ent)
			})
		},
	}
	grant.Flags().StringVarP(&pool, "pool", "p", string(models.PoolATS), "Credit pool (ats_credit, optimization_credit)")
	grant.Flags().IntVarP(&amount, "amount", "n", 1, "Number of credits")
	cmd.AddCommand(grant)
	return cmd
}

func entitlementCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Inspect entitlements",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [user-id]",
		Short: "Show a user's effective entitlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *reconcile.Service) error {
				ent, err := svc.ReadEntitlement(ctx, args[0])
				if err != nil {
					return err
				}
				return writeEntitlement(cmd, ent)
			})
		},
	})
	return cmd
}

func statsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show submission, review and revenue totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *reconcile.Service) error {
				st, err := svc.Stats(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func writeEntitlement(cmd *cobra.Command, ent models.Entitlement) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:          %s\n", ent.UserID)
	fmt.Fprintf(out, "Subscription:  %s\n", ent.SubscriptionStatus)
	if ent.SubscriptionExpiresAt != nil {
		fmt.Fprintf(out, "Expires:       %s\n", ent.SubscriptionExpiresAt.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(out, "ATS credits:   %d\n", ent.ATSCredits)
	fmt.Fprintf(out, "Opt. credits:  %d\n", ent.OptimizationCredits)
	return nil
}
