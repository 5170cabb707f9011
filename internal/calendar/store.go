// Package calendar holds the in-memory state of the current month:
// one Day per date, the selected day, pending task input and the
// derived day status. Every change is applied in memory first and then
// written to the document store by a background worker in commit order.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"focusline/internal/clock"
	"focusline/internal/docstore"
	"focusline/internal/domain"
)

// ErrNotRunning is reported for changes made before Initialize or after
// Dispose; they stay in memory only.
var ErrNotRunning = errors.New("calendar store not running")

// Options configures a Store. Docs is required; the rest have defaults.
type Options struct {
	Docs   docstore.Store
	UserID string
	Clock  clock.Clock
	Logger *slog.Logger
	Goals  Goals
	// OnPersistError is called when a changed day could not be written,
	// never with the store lock held.
	OnPersistError func(day domain.Day, err error)
}

// slot is one calendar date. version increments on every local change
// so a month load in flight can tell which days were edited meanwhile.
type slot struct {
	day     domain.Day
	version uint64
}

// Store is the calendar state of one user for the current month. It is
// safe for concurrent use.
type Store struct {
	docs           docstore.Store
	userID         string
	clock          clock.Clock
	logger         *slog.Logger
	goals          Goals
	onPersistError func(domain.Day, error)

	mu          sync.Mutex
	days        []*slot
	month       time.Time
	selectedDay int
	newTask     string
	monthLoaded bool

	lifecycle sync.Mutex
	queue     *persistQueue
	baseCtx   context.Context
}

// New returns a Store that does nothing until Initialize.
func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Goals == (Goals{}) {
		opts.Goals = DefaultGoals()
	}
	if strings.TrimSpace(opts.UserID) == "" {
		opts.UserID = "testUser"
	}
	return &Store{
		docs:           opts.Docs,
		userID:         opts.UserID,
		clock:          opts.Clock,
		logger:         opts.Logger.With("component", "calendar", "user", opts.UserID),
		goals:          opts.Goals,
		onPersistError: opts.OnPersistError,
	}
}

// Initialize starts the persistence worker, makes sure the user root
// document exists, builds the month grid if it is empty and hydrates it
// from the month document. Read failures are returned but leave the
// store usable on its in-memory defaults.
func (s *Store) Initialize(ctx context.Context) error {
	s.lifecycle.Lock()
	if s.queue == nil {
		s.queue = newPersistQueue()
		s.baseCtx = context.WithoutCancel(ctx)
		go s.persistLoop(s.queue)
	}
	s.lifecycle.Unlock()

	s.mu.Lock()
	empty := len(s.days) == 0
	s.mu.Unlock()
	if empty {
		s.InitDays()
	}

	var errs []error
	if _, err := s.EnsureUserRoot(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.LoadMonth(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Dispose stops accepting writes and waits until queued days are saved.
func (s *Store) Dispose(ctx context.Context) error {
	s.lifecycle.Lock()
	queue := s.queue
	s.queue = nil
	s.lifecycle.Unlock()
	if queue == nil {
		return nil
	}
	queue.close()
	select {
	case <-queue.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every day queued so far has been written.
func (s *Store) Flush(ctx context.Context) error {
	s.lifecycle.Lock()
	queue := s.queue
	s.lifecycle.Unlock()
	if queue == nil {
		return ErrNotRunning
	}
	marker := make(chan struct{})
	if !queue.push(persistRequest{flushed: marker}) {
		return ErrNotRunning
	}
	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) persistLoop(queue *persistQueue) {
	defer close(queue.done)
	for {
		req, ok := queue.pop()
		if !ok {
			return
		}
		if req.flushed != nil {
			close(req.flushed)
			continue
		}
		if err := s.SaveDay(s.baseCtx, req.day); err != nil {
			s.reportPersistError(req.day, err)
		}
	}
}

func (s *Store) reportPersistError(day domain.Day, err error) {
	s.logger.Error("day not persisted", "date", day.Date, "error", err)
	if s.onPersistError != nil {
		s.onPersistError(day, err)
	}
}

// enqueueLocked hands a snapshot to the worker. Called with s.mu held so
// snapshots enter the queue in the order their changes were committed.
func (s *Store) enqueueLocked(day domain.Day) bool {
	s.lifecycle.Lock()
	queue := s.queue
	s.lifecycle.Unlock()
	return queue != nil && queue.push(persistRequest{day: day})
}

// UserPath is the user root document path.
func (s *Store) UserPath() string {
	return docstore.Path("users", s.userID)
}

// MonthPath is the document path for a YYYY-MM key.
func (s *Store) MonthPath(monthKey string) string {
	return docstore.Path("users", s.userID, "months", monthKey)
}

func (s *Store) now() time.Time {
	return s.clock.Now()
}

// Today returns the current date as YYYY-MM-DD.
func (s *Store) Today() string {
	return s.now().Format(domain.DateLayout)
}

// InitDays rebuilds the grid for the current month: one nil slot per
// weekday before the 1st (weeks start on Monday), then one empty Day per
// date. Unsaved edits of the previous grid are discarded.
func (s *Store) InitDays() {
	now := s.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	daysInMonth := first.AddDate(0, 1, -1).Day()
	offset := (int(first.Weekday()) + 6) % 7

	days := make([]*slot, 0, offset+daysInMonth)
	for i := 0; i < offset; i++ {
		days = append(days, nil)
	}
	for d := 1; d <= daysInMonth; d++ {
		days = append(days, &slot{day: domain.Day{
			Date:      first.AddDate(0, 0, d-1).Format(domain.DateLayout),
			DayNumber: d,
			Tasks:     []domain.Task{},
		}})
	}

	s.mu.Lock()
	s.days = days
	s.month = first
	s.mu.Unlock()
}

// MonthKey returns the YYYY-MM key of the displayed month.
func (s *Store) MonthKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monthKeyLocked()
}

func (s *Store) monthKeyLocked() string {
	if s.month.IsZero() {
		return s.now().Format(domain.MonthLayout)
	}
	return s.month.Format(domain.MonthLayout)
}

// LoadMonth hydrates the grid from the month document. The month counts
// as loaded once the fetch finishes, whether it succeeded or not. Days
// changed locally while the fetch was in flight keep their local value.
func (s *Store) LoadMonth(ctx context.Context) error {
	s.mu.Lock()
	s.monthLoaded = false
	monthKey := s.monthKeyLocked()
	versions := make(map[*slot]uint64, len(s.days))
	for _, sl := range s.days {
		if sl != nil {
			versions[sl] = sl.version
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.monthLoaded = true
		s.mu.Unlock()
	}()

	doc, ok, err := s.docs.Get(ctx, s.MonthPath(monthKey))
	if err != nil {
		return fmt.Errorf("load month %s: %w", monthKey, err)
	}
	if !ok {
		s.logger.Debug("month document absent", "month", monthKey)
		return nil
	}
	saved, _ := doc["days"].(map[string]any)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.days {
		if sl == nil {
			continue
		}
		version, tracked := versions[sl]
		if !tracked {
			continue
		}
		entry, ok := saved[sl.day.Date].(map[string]any)
		if !ok {
			continue
		}
		if sl.version != version {
			s.logger.Debug("keeping local edit over loaded day", "date", sl.day.Date)
			continue
		}
		sl.day.Minutes = number(entry["minutes"])
		sl.day.Tasks = normalizeTasks(entry["tasks"])
	}
	return nil
}

// SaveDay merge-writes one day's minutes and tasks into its month
// document, leaving every other day untouched.
func (s *Store) SaveDay(ctx context.Context, day domain.Day) error {
	date, err := time.Parse(domain.DateLayout, day.Date)
	if err != nil {
		return fmt.Errorf("save day: %w", err)
	}
	tasks := make([]any, 0, len(day.Tasks))
	for _, t := range day.Tasks {
		tasks = append(tasks, map[string]any{"text": t.Text, "done": t.Done})
	}
	data := docstore.Document{
		"days": map[string]any{
			day.Date: map[string]any{
				"minutes": day.Minutes,
				"tasks":   tasks,
			},
		},
	}
	if err := s.docs.Set(ctx, s.MonthPath(date.Format(domain.MonthLayout)), data, true); err != nil {
		return fmt.Errorf("save day %s: %w", day.Date, err)
	}
	return nil
}

// EnsureUserRoot returns the legacy totalMinutes counter of the user
// root document, creating the document with a zero counter if missing.
func (s *Store) EnsureUserRoot(ctx context.Context) (float64, error) {
	doc, ok, err := s.docs.Get(ctx, s.UserPath())
	if err != nil {
		return 0, fmt.Errorf("read user root: %w", err)
	}
	if ok {
		return number(doc["totalMinutes"]), nil
	}
	if err := s.docs.Set(ctx, s.UserPath(), docstore.Document{"totalMinutes": 0}, false); err != nil {
		return 0, fmt.Errorf("create user root: %w", err)
	}
	return 0, nil
}

func (s *Store) SetSelectedDay(dayNumber int) {
	s.mu.Lock()
	s.selectedDay = dayNumber
	s.mu.Unlock()
}

// SelectedDay returns the selected day number, 0 when none.
func (s *Store) SelectedDay() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedDay
}

// SelectedDayData returns a copy of the selected Day.
func (s *Store) SelectedDayData() (domain.Day, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.selectedLocked()
	if sl == nil {
		return domain.Day{}, false
	}
	return sl.day.Clone(), true
}

func (s *Store) SetNewTask(text string) {
	s.mu.Lock()
	s.newTask = text
	s.mu.Unlock()
}

// NewTask returns the pending task input.
func (s *Store) NewTask() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newTask
}

// Days returns a copy of the grid; leading blank slots are nil.
func (s *Store) Days() []*domain.Day {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Day, len(s.days))
	for i, sl := range s.days {
		if sl == nil {
			continue
		}
		day := sl.day.Clone()
		out[i] = &day
	}
	return out
}

func (s *Store) IsMonthLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monthLoaded
}

// IsPast reports whether day lies strictly before today.
func (s *Store) IsPast(day domain.Day) bool {
	return day.Date < s.Today()
}

func (s *Store) selectedLocked() *slot {
	if s.selectedDay == 0 {
		return nil
	}
	for _, sl := range s.days {
		if sl != nil && sl.day.DayNumber == s.selectedDay {
			return sl
		}
	}
	return nil
}

// mutateSelected applies fn to the selected day unless there is none or
// it lies in the past. fn reports whether it changed anything.
func (s *Store) mutateSelected(fn func(day *domain.Day) bool) bool {
	s.mu.Lock()
	sl := s.selectedLocked()
	if sl == nil || sl.day.Date < s.Today() {
		s.mu.Unlock()
		return false
	}
	next := sl.day.Clone()
	if !fn(&next) {
		s.mu.Unlock()
		return false
	}
	sl.day = next
	sl.version++
	queued := s.enqueueLocked(next.Clone())
	s.mu.Unlock()

	if !queued {
		s.reportPersistError(next, ErrNotRunning)
	}
	return true
}

// AddTask appends an open task to the selected day and clears the
// pending input. Blank text is ignored.
func (s *Store) AddTask(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	applied := s.mutateSelected(func(day *domain.Day) bool {
		day.Tasks = append(day.Tasks, domain.Task{Text: text})
		return true
	})
	if applied {
		s.SetNewTask("")
	}
	return applied
}

func (s *Store) ToggleTaskDone(index int) bool {
	return s.mutateSelected(func(day *domain.Day) bool {
		if index < 0 || index >= len(day.Tasks) {
			return false
		}
		day.Tasks[index].Done = !day.Tasks[index].Done
		return true
	})
}

func (s *Store) DeleteTask(index int) bool {
	return s.mutateSelected(func(day *domain.Day) bool {
		if index < 0 || index >= len(day.Tasks) {
			return false
		}
		day.Tasks = append(day.Tasks[:index], day.Tasks[index+1:]...)
		return true
	})
}

func (s *Store) RenameTask(index int, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return s.mutateSelected(func(day *domain.Day) bool {
		if index < 0 || index >= len(day.Tasks) {
			return false
		}
		day.Tasks[index].Text = text
		return true
	})
}

// AddMinutes adds focused minutes to the selected day. Fractional and
// zero amounts are accepted; negative, NaN and infinite ones are not.
func (s *Store) AddMinutes(minutes float64) bool {
	if !ValidMinutes(minutes) {
		return false
	}
	return s.mutateSelected(func(day *domain.Day) bool {
		day.Minutes += minutes
		return true
	})
}

// ValidMinutes reports whether minutes can be added to a day.
func ValidMinutes(minutes float64) bool {
	return minutes >= 0 && !math.IsInf(minutes, 0)
}

// StatusSwitch derives the display status of day.
func (s *Store) StatusSwitch(day domain.Day) domain.DayStatus {
	return DeriveStatus(s.IsMonthLoaded(), day.Date, s.Today(), day.Minutes, day.DoneTasks(), s.goals)
}

func (s *Store) TotalMinutes() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, sl := range s.days {
		if sl != nil {
			total += sl.day.Minutes
		}
	}
	return total
}

func (s *Store) TodayMinutes() float64 {
	today := s.Today()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl := s.findLocked(today); sl != nil {
		return sl.day.Minutes
	}
	return 0
}

func (s *Store) TotalDoneTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, sl := range s.days {
		if sl != nil {
			total += sl.day.DoneTasks()
		}
	}
	return total
}

func (s *Store) TodayDoneTasks() int {
	return s.DoneTasksByDate(s.Today())
}

// DoneTasksByDate counts done tasks on date, 0 if the date is not in the grid.
func (s *Store) DoneTasksByDate(date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl := s.findLocked(date); sl != nil {
		return sl.day.DoneTasks()
	}
	return 0
}

func (s *Store) findLocked(date string) *slot {
	for _, sl := range s.days {
		if sl != nil && sl.day.Date == date {
			return sl
		}
	}
	return nil
}
