package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"example/resume-api/app/models"
	"example/resume-api/app/reconcile"

	"github.com/spf13/cobra"
)

func submissionsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "Inspect resume submissions",
	}
	cmd.AddCommand(submissionsListCmd(open))
	return cmd
}

func submissionsListCmd(open opener) *cobra.Command {
	var (
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every submission, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *reconcile.Service) error {
				subs, err := svc.ListAllSubmissions(ctx, models.SubmissionStatus(status))
				if err != nil {
					return err
				}
				if asJSON {
					if subs == nil {
						subs = []models.Submission{}
					}
					return writeJSON(cmd.OutOrStdout(), subs)
				}
				return writeSubmissions(cmd.OutOrStdout(), subs)
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Only submissions in this status")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func writeSubmissions(w io.Writer, subs []models.Submission) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tFILE\tSTATUS\tATS\tSUBMITTED")
	for _, s := range subs {
		score := "-"
		if s.ATSScore != nil {
			score = fmt.Sprint(*s.ATSScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.OwnerID, s.FileName, s.Status, score, s.SubmittedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
