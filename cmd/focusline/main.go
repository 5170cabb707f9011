package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"focusline/internal/app"
	"focusline/internal/calendar"
	"focusline/internal/clock"
	"focusline/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "focusline",
	Short: "focusline productivity tracker",
	Long: `focusline tracks focused time and daily tasks on a monthly calendar.
- Timer: work/break intervals; every finished work interval adds its minutes to the selected day.
- Calendar: the current month, one cell per day. A day turns green when it meets one goal
  (3 done tasks or 70 minutes), violet when it meets both and red when a past day met neither.
- Store: days live in path-addressed documents, either in the workspace sqlite database
  or on a focusline document server (focusline serve).`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FOCUSLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("user", "", "user id (overrides config)")
	flags.String("store", "", "store backend: sqlite or http (overrides config)")
	flags.String("store-url", "", "document server URL for the http backend")
	flags.Int("day", 0, "day of the current month to act on (default today)")
	flags.BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "json", "user", "store", "store-url", "day", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(minutesCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(timerCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(userCmd())
}

// --- helpers ---

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func overrides() app.Overrides {
	return app.Overrides{
		UserID:     viper.GetString("user"),
		Backend:    viper.GetString("store"),
		StoreURL:   viper.GetString("store-url"),
		StoreToken: viper.GetString("store-token"),
	}
}

func withSession(ctx context.Context, fn func(context.Context, *app.Session) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace, overrides())
	if err != nil {
		return err
	}
	session, err := app.Open(ctx, workspace, cfg, newLogger())
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(ctx, session)
}

// withStore opens a calendar store with the --day selected, runs fn and
// waits for every change to be written before returning.
func withStore(ctx context.Context, fn func(context.Context, *app.Session, *calendar.Store) error) error {
	return withSession(ctx, func(ctx context.Context, session *app.Session) error {
		var mu sync.Mutex
		var persistErrs []error
		store := session.NewCalendar(clock.Real(), func(day domain.Day, err error) {
			mu.Lock()
			persistErrs = append(persistErrs, fmt.Errorf("%s: %w", day.Date, err))
			mu.Unlock()
		})
		if err := store.Initialize(ctx); err != nil {
			_ = store.Dispose(ctx)
			return fmt.Errorf("load calendar: %w", err)
		}
		store.SetSelectedDay(selectedDay())
		runErr := fn(ctx, session, store)
		disposeErr := store.Dispose(context.WithoutCancel(ctx))

		mu.Lock()
		defer mu.Unlock()
		return errors.Join(append([]error{runErr, disposeErr}, persistErrs...)...)
	})
}

func selectedDay() int {
	if day := viper.GetInt("day"); day > 0 {
		return day
	}
	return clock.Real().Now().Day()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requireSelected returns the selected day or explains why nothing is
// selected.
func requireSelected(store *calendar.Store) (domain.Day, error) {
	day, ok := store.SelectedDayData()
	if !ok {
		return domain.Day{}, fmt.Errorf("day %d is not in the current month", store.SelectedDay())
	}
	return day, nil
}

// explainRejected turns a rejected mutation into an error.
func explainRejected(store *calendar.Store, what string) error {
	day, err := requireSelected(store)
	if err != nil {
		return err
	}
	if store.IsPast(day) {
		return fmt.Errorf("%s: %s is in the past and read-only", what, day.Date)
	}
	return fmt.Errorf("%s: rejected for %s", what, day.Date)
}
