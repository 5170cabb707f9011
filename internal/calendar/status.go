package calendar

import "focusline/internal/domain"

// Goals are the daily thresholds a day is judged against.
type Goals struct {
	DoneTasks int
	Minutes   float64
}

func DefaultGoals() Goals {
	return Goals{DoneTasks: 3, Minutes: 70}
}

// DeriveStatus classifies a day. Dates are YYYY-MM-DD strings, so they
// order lexically.
//
// Future days and days seen before the month finished loading are
// neutral. Meeting both goals is violet, one goal green. Today stays
// neutral until a goal is met; any earlier day meeting neither is red.
func DeriveStatus(loaded bool, date, today string, minutes float64, doneTasks int, goals Goals) domain.DayStatus {
	if !loaded {
		return domain.StatusNone
	}
	if date > today {
		return domain.StatusNone
	}
	enoughTasks := doneTasks >= goals.DoneTasks
	enoughMinutes := minutes >= goals.Minutes
	switch {
	case enoughTasks && enoughMinutes:
		return domain.StatusViolet
	case enoughTasks || enoughMinutes:
		return domain.StatusGreen
	case date == today:
		return domain.StatusNone
	default:
		return domain.StatusRed
	}
}
