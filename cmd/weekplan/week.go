package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"weekplan/domain"
	"weekplan/week"
)

func newWeekCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Print the tasks, note and summary of a week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := app.planner
			tasks, err := p.Tasks(ctx)
			if err != nil {
				return err
			}
			widths, err := p.ColumnWidths(ctx)
			if err != nil {
				return err
			}
			settings, err := p.Settings(ctx)
			if err != nil {
				return err
			}
			note, err := p.Note(ctx)
			if err != nil {
				return err
			}
			summary, err := p.Summary(ctx)
			if err != nil {
				return err
			}
			printWeek(cmd.OutOrStdout(), weekView{
				week:     p.Week(),
				tasks:    tasks,
				widths:   widths,
				settings: settings,
				note:     note,
				summary:  summary,
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&app.Date, "date", "", "Show the week containing this day (YYYY-MM-DD)")
	return cmd
}

type weekView struct {
	week     week.Week
	tasks    []domain.Task
	widths   [domain.DaysPerWeek]int
	settings *domain.WeekSettings
	note     *domain.Note
	summary  *domain.WeeklySummary
}

func printWeek(w io.Writer, v weekView) {
	fmt.Fprintf(w, "%s  %s .. %s\n", v.week.ID, v.week.StartDate(), v.week.EndDate())
	if s := v.settings; s != nil {
		if s.CustomText != nil {
			fmt.Fprintf(w, "banner: %s\n", *s.CustomText)
		}
		if s.CustomImageURL != nil {
			fmt.Fprintf(w, "image:  %s\n", *s.CustomImageURL)
		}
	}

	for i, date := range v.week.Dates() {
		day, _ := week.ParseDate(date)
		fmt.Fprintf(w, "\n%s %s  (%dpx)\n", day.Weekday().String()[:3], date, v.widths[i])
		if v.summary != nil {
			if entry := v.summary.DailyEntries[fmt.Sprint(i)]; entry != "" {
				fmt.Fprintf(w, "  > %s\n", entry)
			}
		}
		for _, block := range domain.TimeBlocks {
			var lines []string
			for _, t := range v.tasks {
				if t.Date != date || t.TimeBlock != block {
					continue
				}
				mark := " "
				if t.Completed {
					mark = "x"
				}
				lines = append(lines, fmt.Sprintf("    [%s] %d %s", mark, t.ID, t.Content))
			}
			if len(lines) == 0 {
				continue
			}
			fmt.Fprintf(w, "  %s\n%s\n", block, strings.Join(lines, "\n"))
		}
	}

	if v.note != nil && v.note.Content != "" {
		fmt.Fprintf(w, "\nnote:\n%s\n", v.note.Content)
	}
	if s := v.summary; s != nil {
		if s.Keyword != nil {
			fmt.Fprintf(w, "\nkeyword: %s\n", *s.Keyword)
		}
		if s.Reflection != nil {
			fmt.Fprintf(w, "reflection: %s\n", *s.Reflection)
		}
	}
}
