package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"focusline/internal/app"
	"focusline/internal/calendar"
	"focusline/internal/clock"
	"focusline/internal/timer"
)

func timerCmd() *cobra.Command {
	var work, brk time.Duration
	var autostart bool
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Run the work/break timer",
		Long: `Runs an interactive interval timer. Finished work intervals add their minutes to the selected day.
Commands on stdin: s = start/pause, p = pause, r = reset, q = quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, session *app.Session, store *calendar.Store) error {
				if _, err := requireSelected(store); err != nil {
					return err
				}
				tm := session.NewTimer(clock.Real(), store)
				if cmd.Flags().Changed("work") || cmd.Flags().Changed("break") {
					cfg := app.TimerConfig(session.Config)
					if work > 0 {
						cfg.Work = work
					}
					if brk > 0 {
						cfg.Break = brk
					}
					tm.SetDurations(cfg.Work, cfg.Break)
				}
				return runTimer(ctx, tm, os.Stdin, cmd.OutOrStdout(), autostart)
			})
		},
	}
	cmd.Flags().DurationVar(&work, "work", 0, "work interval length (overrides config)")
	cmd.Flags().DurationVar(&brk, "break", 0, "break interval length (overrides config)")
	cmd.Flags().BoolVar(&autostart, "start", false, "start the first interval immediately")
	return cmd
}

// runTimer drives tm from line commands on in until q, EOF or ctx is done.
func runTimer(ctx context.Context, tm *timer.Timer, in io.Reader, out io.Writer, autostart bool) error {
	out = &syncWriter{w: out}
	events := tm.Subscribe(16)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for event := range events {
			renderTimerEvent(out, event)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	status := tm.Status()
	fmt.Fprintf(out, "%s %s, s to start, q to quit\n", status.Mode, formatRemaining(status.Remaining))
	if autostart {
		tm.Start()
	}

	defer func() {
		tm.Stop()
		<-rendered
		fmt.Fprintln(out)
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.ToLower(line) {
			case "s", "start":
				tm.Toggle()
			case "p", "pause":
				tm.Pause()
			case "r", "reset":
				tm.Reset()
			case "q", "quit":
				return nil
			case "":
			default:
				fmt.Fprintf(out, "\nunknown command %q (s, p, r, q)\n", line)
			}
		}
	}
}

func renderTimerEvent(out io.Writer, event timer.Event) {
	switch event.Type {
	case timer.EventTick, timer.EventStateChange:
		fmt.Fprintf(out, "\r%-5s %s %-7s", event.Mode, formatRemaining(event.Remaining), event.State)
	case timer.EventComplete:
		if event.Mode == timer.ModeWork {
			fmt.Fprintf(out, "\nwork interval finished, %g minutes logged\n", event.Minutes)
		} else {
			fmt.Fprintln(out, "\nbreak over")
		}
	case timer.EventModeChange:
		fmt.Fprintf(out, "\rnext: %s %s, s to start\n", event.Mode, formatRemaining(event.Remaining))
	}
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d/time.Minute), int(d%time.Minute/time.Second))
}

// syncWriter serializes writes from the render goroutine and the
// command loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
