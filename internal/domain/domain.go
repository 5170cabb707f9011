package domain

// Date layouts used for day keys and month document ids.
const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

type Task struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type Day struct {
	Date      string  `json:"date" format:"date"`
	DayNumber int     `json:"day_number" minimum:"1" maximum:"31"`
	Minutes   float64 `json:"minutes"`
	Tasks     []Task  `json:"tasks"`
}

// DoneTasks counts tasks marked done.
func (d Day) DoneTasks() int {
	n := 0
	for _, t := range d.Tasks {
		if t.Done {
			n++
		}
	}
	return n
}

// Clone returns a copy that shares no task storage with d.
func (d Day) Clone() Day {
	out := d
	out.Tasks = append([]Task{}, d.Tasks...)
	return out
}

type DayStatus string

const (
	StatusNone   DayStatus = "none"
	StatusGreen  DayStatus = "green"
	StatusRed    DayStatus = "red"
	StatusViolet DayStatus = "violet"
)

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	Path    string `json:"path"`
	Payload string `json:"payload_json"`
}
