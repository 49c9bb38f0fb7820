package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/alma-cli/internal/governance"
	"github.com/sells-group/alma-cli/internal/model"
)

var interventionCmd = &cobra.Command{
	Use:     "intervention",
	Aliases: []string{"iv"},
	Short:   "Inspect and move interventions through review",
	Long:    "Commands for viewing interventions, advancing their review status, and checking or revoking consent.",
}

// withService opens the store, builds the governance service and runs fn.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *governance.Service, actorID string) error) error {
	ctx := cmd.Context()

	st, err := openStore(ctx, "intervention")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	actorID, _ := cmd.Flags().GetString("actor")
	return fn(ctx, newService(st), actorID)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// -- intervention show --

var interventionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an intervention",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *governance.Service, actorID string) error {
			iv, err := svc.GetByID(ctx, args[0], actorID)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, iv)
		})
	},
}

// -- intervention submit / approve / publish --

func transitionCmd(use, short string, fn func(svc *governance.Service) func(ctx context.Context, id, actorID string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *governance.Service, actorID string) error {
				if err := fn(svc)(ctx, args[0], actorID); err != nil {
					return err
				}
				iv, err := svc.GetByID(ctx, args[0], "")
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%s: %s\n", iv.ID, iv.ReviewStatus)
				return nil
			})
		},
	}
}

var (
	interventionSubmitCmd = transitionCmd("submit", "Submit a Draft intervention for community review",
		func(svc *governance.Service) func(context.Context, string, string) error { return svc.SubmitForReview })
	interventionApproveCmd = transitionCmd("approve", "Approve an intervention under community review",
		func(svc *governance.Service) func(context.Context, string, string) error { return svc.Approve })
	interventionPublishCmd = transitionCmd("publish", "Publish an approved intervention to JusticeHub",
		func(svc *governance.Service) func(context.Context, string, string) error { return svc.Publish })
)

// -- intervention check --

var interventionCheckCmd = &cobra.Command{
	Use:   "check <id>",
	Short: "Check whether consent permits an action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, _ := cmd.Flags().GetString("action")
		return withService(cmd, func(ctx context.Context, svc *governance.Service, _ string) error {
			res, err := svc.CheckPermission(ctx, args[0], model.PermittedUse(action))
			if err != nil {
				return err
			}
			formatPermission(os.Stdout, res)
			return nil
		})
	},
}

func formatPermission(w io.Writer, res *governance.PermissionResult) {
	verdict := "ALLOWED"
	if !res.Allowed {
		verdict = "DENIED: " + res.Reason
	}
	fmt.Fprintln(w, verdict)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tPASSED\tREASON\tREQUIRED ACTION")
	for _, c := range res.Checks {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", c.Rule, c.Passed, c.Reason, c.RequiredAction)
	}
	tw.Flush() //nolint:errcheck
}

// -- intervention revoke --

var interventionRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke consent for an intervention",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withService(cmd, func(ctx context.Context, svc *governance.Service, actorID string) error {
			if err := svc.RevokeConsent(ctx, args[0], actorID, reason); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s: consent revoked\n", args[0])
			return nil
		})
	},
}

// -- intervention usage --

var interventionUsageCmd = &cobra.Command{
	Use:   "usage <id>",
	Short: "Show the usage history of an intervention",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, _ := cmd.Flags().GetString("action")
		since, _ := cmd.Flags().GetDuration("since")

		f := model.UsageFilter{Action: model.UsageAction(action)}
		if since > 0 {
			t := time.Now().Add(-since)
			f.Since = &t
		}

		return withService(cmd, func(ctx context.Context, svc *governance.Service, _ string) error {
			entries, err := svc.UsageHistory(ctx, args[0], f)
			if err != nil {
				return err
			}
			formatUsage(os.Stdout, entries)
			return nil
		})
	},
}

func formatUsage(w io.Writer, entries []model.UsageLogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No usage recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tUSER\tDESTINATION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.UTC().Format(time.RFC3339), e.Action, e.UserID, e.Destination)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	interventionCmd.PersistentFlags().String("actor", os.Getenv("USER"), "actor id recorded in the usage log")

	interventionCheckCmd.Flags().String("action", string(model.UsePublish), "permitted use to check")
	interventionRevokeCmd.Flags().String("reason", "", "reason recorded with the revocation")
	interventionUsageCmd.Flags().String("action", "", "filter by action (view, create, update, submit, approve, publish, revoke, consent)")
	interventionUsageCmd.Flags().Duration("since", 0, "only show usage within this window (e.g. 72h)")

	interventionCmd.AddCommand(
		interventionShowCmd,
		interventionSubmitCmd,
		interventionApproveCmd,
		interventionPublishCmd,
		interventionCheckCmd,
		interventionRevokeCmd,
		interventionUsageCmd,
	)
	rootCmd.AddCommand(interventionCmd)
}
