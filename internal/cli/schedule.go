package cli

import (
	"fmt"
	"text/tabwriter"

	"broadcast-quiz-service/internal/clock"
	"broadcast-quiz-service/internal/config"
	"broadcast-quiz-service/internal/schedule"
	"github.com/spf13/cobra"
)

// NewScheduleCmd groups schedule tooling.
func NewScheduleCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect campaign schedules",
	}
	cmd.AddCommand(newScheduleValidateCmd(configPath))
	return cmd
}

func newScheduleValidateCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a schedule file and print its items",
		RunE: func(cmd *cobra.Command, args []string) error {
			timezone := "Europe/Moscow"
			if file == "" {
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				file = cfg.Schedule.Path
				timezone = cfg.Scheduler.Timezone
			}
			loc, err := clock.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("timezone: %w", err)
			}
			campaign, err := schedule.LoadFile(file, clock.Real(loc).Now(), loc)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTART\tEND\tHINT")
			for _, item := range campaign.Items {
				end, hint := "-", "-"
				if item.IsStage() {
					end = item.End.Format(schedule.TimeLayout)
				}
				if item.Hint != nil {
					hint = item.Hint.Delay.String()
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", item.ID, item.Kind, item.Start.Format(schedule.TimeLayout), end, hint)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d items valid (%s)\n", file, len(campaign.Items), campaign.Location)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "schedule file (defaults to schedule.path from config)")
	return cmd
}
