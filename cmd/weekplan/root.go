package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"weekplan/client"
	"weekplan/planner"
	"weekplan/week"
)

const flushTimeout = 10 * time.Second

type App struct {
	APIURL string
	Token  string
	Week   string
	Date   string
	Debug  bool

	newRemote func(baseURL, token string) planner.Remote
	now       func() time.Time
	planner   *planner.Planner
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{
		newRemote: func(baseURL, token string) planner.Remote { return client.New(baseURL, token) },
		now:       time.Now,
	})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "weekplan",
		Short:        "Weekly planner CLI",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Show the current week
  weekplan week

  # Plan something for Wednesday evening
  weekplan add "gym" --date 2026-01-14 --block evening

  # Look at another week
  weekplan week --week 2026-W04
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Help and shell completion never talk to the API.
		if cmd.Name() == "help" || strings.HasPrefix(cmd.CommandPath(), "weekplan completion") {
			return nil
		}
		return app.open(cmd.Context())
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return app.close()
	}

	cmd.PersistentFlags().StringVar(&app.APIURL, "api", envOr("WEEKPLAN_API_URL", "http://localhost:8080"), "Base URL of the weekplan API")
	cmd.PersistentFlags().StringVar(&app.Token, "token", envOr("WEEKPLAN_TOKEN", ""), "Bearer token")
	cmd.PersistentFlags().StringVar(&app.Week, "week", "", "Week to work on (YYYY-Www)")
	cmd.PersistentFlags().BoolVar(&app.Debug, "debug", false, "Log planner activity")

	cmd.AddCommand(newWeekCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newDoneCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newRmCmd(app))
	cmd.AddCommand(newMvCmd(app))
	cmd.AddCommand(newNoteCmd(app))
	cmd.AddCommand(newSummaryCmd(app))
	cmd.AddCommand(newWidthCmd(app))
	cmd.AddCommand(newBannerCmd(app))

	return cmd
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// anchor returns a time inside the selected week.
func (app *App) anchor() (time.Time, error) {
	switch {
	case app.Week != "":
		w, err := week.Parse(app.Week)
		if err != nil {
			return time.Time{}, err
		}
		return w.Start, nil
	case app.Date != "":
		return week.ParseDate(app.Date)
	}
	return app.now(), nil
}

func (app *App) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if app.APIURL == "" {
		return errors.New("missing API URL: set --api or WEEKPLAN_API_URL")
	}
	at, err := app.anchor()
	if err != nil {
		return err
	}
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.WarnLevel)
	if app.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	app.planner = planner.New(app.newRemote(app.APIURL, app.Token), planner.Options{
		Logger: logger,
		Now:    app.now,
	})
	if err := app.planner.SetWeek(ctx, at); err != nil {
		return fmt.Errorf("load week: %w", err)
	}
	return nil
}

// close writes debounced edits before the process exits.
func (app *App) close() error {
	if app.planner == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	err := app.planner.Close(ctx)
	app.planner = nil
	if err != nil {
		return fmt.Errorf("save pending edits: %w", err)
	}
	return nil
}
