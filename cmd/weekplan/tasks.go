package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"weekplan/domain"
	"weekplan/planner"
	"weekplan/week"
)

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

// defaultDate is today when it falls in the displayed week, else its Monday.
func (app *App) defaultDate() string {
	w := app.planner.Week()
	today := app.now().Format(week.DateLayout)
	if w.Contains(today) {
		return today
	}
	return w.StartDate()
}

func reportResult(cmd *cobra.Command, res planner.Result, id int64, done string) error {
	if res.NotFound {
		return fmt.Errorf("task %d not found", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", done, id)
	return nil
}

func newAddCmd(app *App) *cobra.Command {
	var block string
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a task to a day and time block",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, err := domain.ParseTimeBlock(block)
			if err != nil {
				return err
			}
			date := app.Date
			if date == "" {
				date = app.defaultDate()
			}
			t, err := app.planner.AddTask(cmd.Context(), strings.Join(args, " "), date, tb)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d %s %s\n", t.ID, t.Date, t.TimeBlock)
			return nil
		},
	}
	cmd.Flags().StringVar(&app.Date, "date", "", "Day of the task (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&block, "block", string(domain.Morning), "Time block (morning|afternoon|evening)")
	return cmd
}

func newDoneCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle completion of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			res, err := app.planner.ToggleTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			if t, ok := res.Value.(domain.Task); ok && !t.Completed {
				return reportResult(cmd, res, id, "reopened")
			}
			return reportResult(cmd, res, id, "completed")
		},
	}
}

func newEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <content>",
		Short: "Change the text of a task; empty text deletes it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			content := strings.TrimSpace(strings.Join(args[1:], " "))
			res, err := app.planner.UpdateTaskContent(cmd.Context(), id, content)
			if err != nil {
				return err
			}
			if content == "" {
				return reportResult(cmd, res, id, "deleted")
			}
			return reportResult(cmd, res, id, "updated")
		},
	}
}

func newRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			res, err := app.planner.DeleteTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			return reportResult(cmd, res, id, "deleted")
		},
	}
}

func newMvCmd(app *App) *cobra.Command {
	var block string
	cmd := &cobra.Command{
		Use:   "mv <id>",
		Short: "Move a task to the end of another cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			tb, err := domain.ParseTimeBlock(block)
			if err != nil {
				return err
			}
			if app.Date == "" {
				return &domain.ValidationError{Field: "date", Reason: "--date is required"}
			}
			if err := app.planner.MoveTask(cmd.Context(), id, app.Date, tb); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %d to %s %s\n", id, app.Date, tb)
			return nil
		},
	}
	cmd.Flags().StringVar(&app.Date, "date", "", "Target day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&block, "block", string(domain.Morning), "Target time block (morning|afternoon|evening)")
	return cmd
}
