package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"focusline/internal/app"
	"focusline/internal/calendar"
	"focusline/internal/domain"
)

type dayView struct {
	Date      string        `json:"date"`
	Day       int           `json:"day"`
	Minutes   float64       `json:"minutes"`
	DoneTasks int           `json:"doneTasks"`
	Tasks     []domain.Task `json:"tasks"`
	Status    string        `json:"status"`
	Past      bool          `json:"past"`
}

func viewOf(store *calendar.Store, d domain.Day) dayView {
	tasks := d.Tasks
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return dayView{
		Date:      d.Date,
		Day:       d.DayNumber,
		Minutes:   d.Minutes,
		DoneTasks: d.DoneTasks(),
		Tasks:     tasks,
		Status:    string(store.StatusSwitch(d)),
		Past:      store.IsPast(d),
	}
}

var weekdays = table.Row{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func statusColor(status domain.DayStatus) text.Colors {
	switch status {
	case domain.StatusViolet:
		return text.Colors{text.FgMagenta, text.Bold}
	case domain.StatusGreen:
		return text.Colors{text.FgGreen}
	case domain.StatusRed:
		return text.Colors{text.FgRed}
	default:
		return nil
	}
}

func statusMark(status domain.DayStatus) string {
	switch status {
	case domain.StatusViolet:
		return "**"
	case domain.StatusGreen:
		return "+"
	case domain.StatusRed:
		return "x"
	default:
		return ""
	}
}

func calendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "Show the current month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, _ *app.Session, store *calendar.Store) error {
				days := store.Days()
				if viper.GetBool("json") {
					out := make([]dayView, 0, len(days))
					for _, d := range days {
						if d != nil {
							out = append(out, viewOf(store, *d))
						}
					}
					return printJSON(map[string]any{"month": store.MonthKey(), "days": out})
				}
				today := store.Today()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle(store.MonthKey())
				tw.AppendHeader(weekdays)
				row := table.Row{}
				for _, d := range days {
					cell := ""
					if d != nil {
						status := store.StatusSwitch(*d)
						cell = fmt.Sprintf("%2d%s", d.DayNumber, statusMark(status))
						if d.Date == today {
							cell = "[" + cell + "]"
						}
						if colors := statusColor(status); colors != nil {
							cell = colors.Sprint(cell)
						}
					}
					row = append(row, cell)
					if len(row) == len(weekdays) {
						tw.AppendRow(row)
						row = table.Row{}
					}
				}
				if len(row) > 0 {
					tw.AppendRow(row)
				}
				tw.AppendFooter(table.Row{"", "", "", "", "total", "min", fmt.Sprintf("%g", store.TotalMinutes())})
				tw.Render()
				return nil
			})
		},
	}
}

func dayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day",
		Short: "Show the selected day (--day, default today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, _ *app.Session, store *calendar.Store) error {
				day, err := requireSelected(store)
				if err != nil {
					return err
				}
				view := viewOf(store, day)
				if viper.GetBool("json") {
					return printJSON(view)
				}
				fmt.Printf("%s  status=%s  minutes=%g  done=%d/%d\n", view.Date, view.Status, view.Minutes, view.DoneTasks, len(view.Tasks))
				renderTasks(view.Tasks)
				return nil
			})
		},
	}
}

func renderTasks(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Done", "Task"})
	for i, t := range tasks {
		done := ""
		if t.Done {
			done = "x"
		}
		tw.AppendRow(table.Row{i + 1, done, t.Text})
	}
	tw.Render()
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage the selected day's tasks",
		Long:  "Tasks belong to one day. Past days are read-only; indexes are 1-based as shown by task list.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskRemoveCmd())
	task.AddCommand(taskRenameCmd())
	task.AddCommand(taskListCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, _ *app.Session, store *calendar.Store) error {
				store.SetNewTask(strings.Join(args, " "))
				if !store.AddTask(store.NewTask()) {
					if strings.TrimSpace(store.NewTask()) == "" {
						return fmt.Errorf("add task: text is empty")
					}
					return explainRejected(store, "add task")
				}
				return printDay(store)
			})
		},
	}
}

func taskDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <index>",
		Short: "Toggle a task's done flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := taskIndex(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, _ *app.Session, store *calendar.Store) error {
				if !store.ToggleTaskDone(index) {
					return explainRejected(store, fmt.Sprintf("toggle task %s", args[0]))
				}
				return printDay(store)
			})
		},
	}
}

func taskRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <index>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := taskIndex(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, _ *app.Session, store *calendar.Store) error {
				if !store.DeleteTask(index) {
					return explainRejected(store, fmt.Sprintf("delete task %s", args[0]))
				}
				return printDay(store)
			})
		},
	}
}

func taskRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <index> <text>",
		Short: "Change a task's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := taskIndex(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, _ *app.Session, store *calendar.Store) error {
				if !store.RenameTask(index, strings.Join(args[1:], " ")) {
					return explainRejected(store, fmt.Sprintf("rename task %s", args[0]))
				}
				return printDay(store)
			})
		},
	}
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the selected day's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, _ *app.Session, store *calendar.Store) error {
				day, err := requireSelected(store)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(viewOf(store, day).Tasks)
				}
				renderTasks(day.Tasks)
				return nil
			})
		},
	}
}

func taskIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid task index %q", arg)
	}
	return n - 1, nil
}

func parseMinutes(arg string) (float64, error) {
	n, err := strconv.ParseFloat(arg, 64)
	if err != nil || !calendar.ValidMinutes(n) {
		return 0, fmt.Errorf("invalid minutes %q", arg)
	}
	return n, nil
}

func printDay(store *calendar.Store) error {
	day, err := requireSelected(store)
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(viewOf(store, day))
	}
	renderTasks(day.Tasks)
	return nil
}

func minutesCmd() *cobra.Command {
	minutes := &cobra.Command{Use: "minutes", Short: "Record focused time"}
	minutes.AddCommand(&cobra.Command{
		Use:   "add <minutes>",
		Short: "Add minutes to the selected day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseMinutes(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, _ *app.Session, store *calendar.Store) error {
				if !store.AddMinutes(n) {
					return explainRejected(store, "add minutes")
				}
				day, _ := store.SelectedDayData()
				if viper.GetBool("json") {
					return printJSON(viewOf(store, day))
				}
				fmt.Printf("%s: %g minutes\n", day.Date, day.Minutes)
				return nil
			})
		},
	})
	return minutes
}

type statsView struct {
	Month          string  `json:"month"`
	TotalMinutes   float64 `json:"totalMinutes"`
	TodayMinutes   float64 `json:"todayMinutes"`
	TotalDoneTasks int     `json:"totalDoneTasks"`
	TodayDoneTasks int     `json:"todayDoneTasks"`
	GoalTasks      int     `json:"goalTasks"`
	GoalMinutes    float64 `json:"goalMinutes"`
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show month and today totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, session *app.Session, store *calendar.Store) error {
				view := statsView{
					Month:          store.MonthKey(),
					TotalMinutes:   store.TotalMinutes(),
					TodayMinutes:   store.TodayMinutes(),
					TotalDoneTasks: store.TotalDoneTasks(),
					TodayDoneTasks: store.TodayDoneTasks(),
					GoalTasks:      session.Config.Goals.DoneTasks,
					GoalMinutes:    session.Config.Goals.Minutes,
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"", "Month " + view.Month, "Today", "Daily goal"})
				tw.AppendRow(table.Row{"Minutes", fmt.Sprintf("%g", view.TotalMinutes), fmt.Sprintf("%g", view.TodayMinutes), fmt.Sprintf("%g", view.GoalMinutes)})
				tw.AppendRow(table.Row{"Done tasks", view.TotalDoneTasks, view.TodayDoneTasks, view.GoalTasks})
				tw.Render()
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "User root document"}
	user.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user root document if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, session *app.Session) error {
				store := session.NewCalendar(nil, nil)
				total, err := store.EnsureUserRoot(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"path": store.UserPath(), "totalMinutes": total})
				}
				fmt.Printf("%s ready (totalMinutes=%g)\n", store.UserPath(), total)
				return nil
			})
		},
	})
	return user
}
