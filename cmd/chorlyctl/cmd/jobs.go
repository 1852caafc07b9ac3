package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dukerupert/chorly/internal/app"
	"github.com/dukerupert/chorly/internal/jobs"
)

type jobFunc func(r *jobs.Runner, ctx context.Context) (jobs.Report, error)

func newJobCmd(v *viper.Viper, use, short string, run jobFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app.App) error {
				rep, err := run(a.Runner, ctx)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				if n := rep.Failures(); n > 0 {
					return fmt.Errorf("%s: %d failures", rep.Job, n)
				}
				return nil
			})
		},
	}
}

func newGenerateCmd(v *viper.Viper) *cobra.Command {
	return newJobCmd(v, "generate", "Materialize occurrences up to the generation horizon", (*jobs.Runner).Generate)
}

func newRemindCmd(v *viper.Viper) *cobra.Command {
	return newJobCmd(v, "remind", "Email today's open chores to their assignees", (*jobs.Runner).Reminders)
}

func newNagCmd(v *viper.Viper) *cobra.Command {
	return newJobCmd(v, "nag", "Email assignees of overdue occurrences", (*jobs.Runner).Overdue)
}

func newSummaryCmd(v *viper.Viper) *cobra.Command {
	return newJobCmd(v, "summary", "Email every active member their weekly summary", (*jobs.Runner).Summary)
}

func newMaterializeCmd(v *viper.Viper) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "materialize <tenant-id> <chore-id>",
		Short: "Materialize one chore over the next days",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			return withApp(cmd, v, func(ctx context.Context, a *app.App) error {
				w := a.Config.Zone.Days(a.Service.Now(), days)
				res, err := a.Service.Materialize(ctx, args[0], args[1], w)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "created %d, skipped %d\n", len(res.Created), res.Skipped)
				for _, o := range res.Created {
					fmt.Fprintf(out, "  %s  %s  %v\n", o.ID, a.Config.Zone.In(o.DueAt).Format("2006-01-02 15:04"), o.AssigneeIDs)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "local days to cover, starting today")
	return cmd
}

func newSeedTemplatesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-templates <tenant-id> <member-id>",
		Short: "Add the built-in chore templates a tenant is missing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app.App) error {
				created, err := a.Service.SeedTemplates(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d templates\n", len(created))
				return nil
			})
		},
	}
}

func printReport(w io.Writer, rep jobs.Report) {
	fmt.Fprintf(w, "%s: %d tenants, %d created, %d sent, %d failures in %s\n",
		rep.Job, len(rep.Tenants), rep.Created(), rep.Sent(), rep.Failures(),
		rep.Finished.Sub(rep.Started).Round(time.Millisecond))
	for _, t := range rep.Tenants {
		if t.Err != nil {
			fmt.Fprintf(w, "  tenant %s: %v\n", t.TenantID, t.Err)
			continue
		}
		for _, c := range t.Chores {
			switch {
			case c.Err != nil:
				fmt.Fprintf(w, "  chore %s: %v\n", c.ChoreID, c.Err)
			case c.Held:
				fmt.Fprintf(w, "  chore %s: held by another pass\n", c.ChoreID)
			case c.Created > 0:
				fmt.Fprintf(w, "  chore %s: %d created, %d skipped\n", c.ChoreID, c.Created, c.Skipped)
			}
		}
	}
}
