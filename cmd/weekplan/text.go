package main

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// textArg joins args; an empty result clears the field.
func textArg(args []string) *string {
	s := strings.TrimSpace(strings.Join(args, " "))
	if s == "" {
		return nil
	}
	return &s
}

func parseDay(s string) (int, error) {
	day, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid day %q: want 0 (Monday) to 6 (Sunday)", s)
	}
	return day, nil
}

func newNoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "note <text>",
		Short: "Replace the note of the week",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.planner.UpdateNote(strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), "note saved")
			return nil
		},
	}
}

func newSummaryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Edit the weekly summary",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "keyword [text]",
		Short: "Set the keyword of the week; no text clears it",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.planner.UpdateKeyword(textArg(args))
			fmt.Fprintln(cmd.OutOrStdout(), "keyword saved")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reflection [text]",
		Short: "Set the reflection of the week; no text clears it",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.planner.UpdateReflection(textArg(args))
			fmt.Fprintln(cmd.OutOrStdout(), "reflection saved")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "day <n> [text]",
		Short: "Set the entry of one day (0 is Monday)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(args[0])
			if err != nil {
				return err
			}
			if err := app.planner.UpdateDailyEntry(day, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "day %d saved\n", day)
			return nil
		},
	})
	return cmd
}

func newWidthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "width <day> <px>",
		Short: "Resize a day column (0 is Monday)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(args[0])
			if err != nil {
				return err
			}
			px, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid width %q", args[1])
			}
			if err := app.planner.UpdateColumnWidth(day, px); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "column %d resized\n", day)
			return nil
		},
	}
}

func newBannerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "banner",
		Short: "Edit the custom banner of the week",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "text [text]",
		Short: "Set the banner text; no text clears it",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.planner.UpdateCustomText(textArg(args))
			fmt.Fprintln(cmd.OutOrStdout(), "banner saved")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "image <file>",
		Short: "Upload a banner image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(args[0])))
			if ct == "" {
				ct = http.DetectContentType(data)
			}
			if i := strings.IndexByte(ct, ';'); i >= 0 {
				ct = ct[:i]
			}
			url, err := app.planner.UploadCustomImage(cmd.Context(), bytes.NewReader(data), ct)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear-image",
		Short: "Remove the banner image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.planner.ClearCustomImage(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "image removed")
			return nil
		},
	})
	return cmd
}
