package timer

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"focusline/internal/clock"
)

// Reporter receives the length of every finished work interval.
type Reporter interface {
	AddMinutes(minutes float64) bool
}

// Config contains interval lengths and loop timing.
type Config struct {
	Work  time.Duration
	Break time.Duration
	// SettleDelay is the pause between finishing an interval and
	// switching to the next mode.
	SettleDelay  time.Duration
	TickInterval time.Duration
}

type Options struct {
	Clock    clock.Clock
	Reporter Reporter
	Logger   *slog.Logger
}

// Timer is a work/break countdown. Remaining time is recomputed from
// the wall clock on every tick, so slow ticks never accumulate drift.
type Timer struct {
	mu       sync.Mutex
	clock    clock.Clock
	reporter Reporter
	logger   *slog.Logger
	config   Config

	mode      Mode
	state     State
	duration  time.Duration
	elapsed   time.Duration
	startedAt time.Time
	remaining time.Duration
	completed bool

	ticker   *clock.Ticker
	stopTick chan struct{}
	settle   *clock.Timer
	events   []chan Event
}

func New(config Config, opts Options) *Timer {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.SettleDelay < 0 {
		config.SettleDelay = 0
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	t := &Timer{
		clock:    opts.Clock,
		reporter: opts.Reporter,
		logger:   opts.Logger.With("component", "timer"),
		config:   config,
		mode:     ModeWork,
		state:    StatePaused,
	}
	t.duration = t.durationForLocked(ModeWork)
	t.remaining = t.duration
	return t
}

// Subscribe registers a new observer channel. Slow observers miss
// events instead of blocking the timer.
func (t *Timer) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	t.mu.Lock()
	t.events = append(t.events, ch)
	t.mu.Unlock()
	return ch
}

// Start resumes the countdown of the current interval.
func (t *Timer) Start() {
	t.mu.Lock()
	if t.state == StateRunning || t.completed {
		t.mu.Unlock()
		return
	}
	t.state = StateRunning
	t.startedAt = t.clock.Now()
	t.startTickLocked()
	event := t.eventLocked(EventStateChange, t.startedAt)
	t.mu.Unlock()
	t.emit(event)
}

// Pause freezes the countdown, keeping the time already spent.
func (t *Timer) Pause() {
	t.mu.Lock()
	if t.state != StateRunning || t.completed {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	t.elapsed += now.Sub(t.startedAt)
	t.remaining = clampRemaining(t.duration - t.elapsed)
	t.state = StatePaused
	t.stopTickLocked()
	event := t.eventLocked(EventStateChange, now)
	t.mu.Unlock()
	t.emit(event)
}

// Toggle starts a paused timer and pauses a running one.
func (t *Timer) Toggle() {
	t.mu.Lock()
	running := t.state == StateRunning
	t.mu.Unlock()
	if running {
		t.Pause()
		return
	}
	t.Start()
}

// Reset pauses and restores the full duration of the current mode. A
// pending mode switch is cancelled.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.resetLocked()
	event := t.eventLocked(EventStateChange, t.clock.Now())
	t.mu.Unlock()
	t.emit(event)
}

// SetDurations replaces the interval lengths. The tick is torn down and
// the countdown restarts, paused, from the new length of the current mode.
func (t *Timer) SetDurations(work, brk time.Duration) {
	t.mu.Lock()
	t.config.Work = work
	t.config.Break = brk
	t.resetLocked()
	event := t.eventLocked(EventStateChange, t.clock.Now())
	t.mu.Unlock()
	t.emit(event)
}

// Stop tears the timer down and closes observer channels.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopTickLocked()
	if t.settle != nil {
		t.settle.Stop()
		t.settle = nil
	}
	t.state = StatePaused
	events := t.events
	t.events = nil
	t.mu.Unlock()

	for _, ch := range events {
		close(ch)
	}
}

// Status is a snapshot of the timer.
type Status struct {
	Mode      Mode
	State     State
	Duration  time.Duration
	Remaining time.Duration
}

func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.remaining
	if t.state == StateRunning {
		remaining = t.remainingAtLocked(t.clock.Now())
	}
	return Status{Mode: t.mode, State: t.state, Duration: t.duration, Remaining: remaining}
}

func (t *Timer) resetLocked() {
	t.stopTickLocked()
	if t.settle != nil {
		t.settle.Stop()
		t.settle = nil
	}
	t.state = StatePaused
	t.duration = t.durationForLocked(t.mode)
	t.elapsed = 0
	t.remaining = t.duration
	t.completed = false
}

func (t *Timer) tick(now time.Time) {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	t.remaining = t.remainingAtLocked(now)
	if t.remaining > 0 || t.completed {
		event := t.eventLocked(EventTick, now)
		t.mu.Unlock()
		t.emit(event)
		return
	}

	t.completed = true
	finished := t.mode
	minutes := t.duration.Minutes()
	event := t.eventLocked(EventComplete, now)
	event.Minutes = minutes
	t.mu.Unlock()

	t.emit(event)
	if finished == ModeWork && t.reporter != nil {
		if !t.reporter.AddMinutes(minutes) {
			t.logger.Warn("finished work interval not recorded", "minutes", minutes)
		}
	}

	settle := t.clock.AfterFunc(t.config.SettleDelay, t.switchMode)
	t.mu.Lock()
	if t.completed {
		t.settle = settle
	}
	t.mu.Unlock()
}

// switchMode flips work and break once a finished interval has settled.
func (t *Timer) switchMode() {
	t.mu.Lock()
	if !t.completed {
		t.mu.Unlock()
		return
	}
	t.stopTickLocked()
	t.settle = nil
	if t.mode == ModeWork {
		t.mode = ModeBreak
	} else {
		t.mode = ModeWork
	}
	t.duration = t.durationForLocked(t.mode)
	t.elapsed = 0
	t.remaining = t.duration
	t.completed = false
	t.state = StatePaused
	event := t.eventLocked(EventModeChange, t.clock.Now())
	t.mu.Unlock()
	t.emit(event)
}

func (t *Timer) remainingAtLocked(now time.Time) time.Duration {
	return clampRemaining(t.duration - t.elapsed - now.Sub(t.startedAt))
}

func (t *Timer) durationForLocked(mode Mode) time.Duration {
	if mode == ModeBreak {
		return t.config.Break
	}
	return t.config.Work
}

func (t *Timer) startTickLocked() {
	ticker := t.clock.NewTicker(t.config.TickInterval)
	stop := make(chan struct{})
	t.ticker = ticker
	t.stopTick = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				t.tick(now)
			}
		}
	}()
}

func (t *Timer) stopTickLocked() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.stopTick)
	t.ticker = nil
	t.stopTick = nil
}

func (t *Timer) eventLocked(kind EventType, at time.Time) Event {
	return Event{Type: kind, Mode: t.mode, State: t.state, Remaining: t.remaining, At: at}
}

func (t *Timer) emit(event Event) {
	t.mu.Lock()
	for _, ch := range t.events {
		select {
		case ch <- event:
		default:
		}
	}
	t.mu.Unlock()
}

func clampRemaining(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
