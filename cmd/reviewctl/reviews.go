package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"example/resume-api/app/models"
	"example/resume-api/app/reconcile"
	"example/resume-api/app/store"

	"github.com/spf13/cobra"
)

func reviewsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "List and move review orders",
	}
	cmd.AddCommand(reviewsListCmd(open))
	cmd.AddCommand(reviewsAssignCmd(open))
	cmd.AddCommand(reviewMoveCmd(open, "start", "Mark an assigned review as in progress", (*reconcile.Service).StartReview))
	cmd.AddCommand(reviewsCompleteCmd(open))
	cmd.AddCommand(reviewMoveCmd(open, "cancel", "Cancel an open review; the resume leaves pending_review", (*reconcile.Service).CancelReview))
	cmd.AddCommand(reviewMoveCmd(open, "reopen", "Re-open a completed review", (*reconcile.Service).ReopenReview))
	return cmd
}

func reviewsListCmd(open opener) *cobra.Command {
	var (
		all      bool
		owner    string
		resumeID string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open review orders, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *reconcile.Service) error {
				orders, err := svc.ListReviewOrders(ctx, store.ReviewFilter{OwnerID: owner, ResumeID: resumeID, OpenOnly: !all})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), orders)
				}
				return writeReviews(cmd.OutOrStdout(), orders)
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include completed and cancelled orders")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner id")
	cmd.Flags().StringVar(&resumeID, "resume", "", "Filter by resume id")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func reviewsAssignCmd(open opener) *cobra.Command {
	var reviewer string
	cmd := &cobra.Command{
		Use:   "assign [review-id]",
		Short: "Assign a requested review to a reviewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *reconcile.Service) error {
				o, err := svc.AssignReview(ctx, args[0], reviewer)
				if err != nil {
					return err
				}
				return writeReviews(cmd.OutOrStdout(), []models.ReviewOrder{o})
			})
		},
	}
	cmd.Flags().StringVarP(&reviewer, "reviewer", "r", "", "Reviewer id")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func reviewsCompleteCmd(open opener) *cobra.Command {
	var feedback, file string
	cmd := &cobra.Command{
		Use:   "complete [review-id]",
		Short: "Complete an in-progress review with feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc *reconcile.ReviewedDocument
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read reviewed resume: %w", err)
				}
				doc = &reconcile.ReviewedDocument{FileName: filepath.Base(file), Data: data}
			}
			return run(cmd, open, func(ctx context.Context, svc *reconcile.Service) error {
				o, err := svc.CompleteReviewWithDocument(ctx, args[0], feedback, doc)
				if err != nil {
					return err
				}
				return writeReviews(cmd.OutOrStdout(), []models.ReviewOrder{o})
			})
		},
	}
	cmd.Flags().StringVarP(&feedback, "feedback", "f", "", "Reviewer feedback shown to the customer")
	cmd.Flags().StringVar(&file, "file", "", "Reviewed resume to hand back as the optimized download")
	return cmd
}

type reviewMove func(*reconcile.Service, context.Context, string) (models.ReviewOrder, error)

func reviewMoveCmd(open opener, use, short string, move reviewMove) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [review-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *reconcile.Service) error {
				o, err := move(svc, ctx, args[0])
				if err != nil {
					return err
				}
				return writeReviews(cmd.OutOrStdout(), []models.ReviewOrder{o})
			})
		},
	}
}

func writeReviews(w io.Writer, orders []models.ReviewOrder) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRESUME\tOWNER\tSTATUS\tREVIEWER\tSUBMITTED")
	for _, o := range orders {
		reviewer := o.ReviewerID
		if reviewer == "" {
			reviewer = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.ResumeID, o.OwnerID, o.Status, reviewer, o.SubmittedDate.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
