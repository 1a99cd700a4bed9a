package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DayLayout is the wire form of a calendar day.
const DayLayout = "2006-01-02"

// upcomingWindow is how far ahead a due date counts as upcoming.
const upcomingWindow = 7 * 24 * time.Hour

// Stats are the dashboard counters derived from a task list.
type Stats struct {
	Total      int              `json:"total"`
	Completed  int              `json:"completed"`
	Overdue    int              `json:"overdue"`
	Upcoming   int              `json:"upcoming"`
	ByStatus   map[Status]int   `json:"byStatus"`
	ByPriority map[Priority]int `json:"byPriority"`
}

// ComputeStats derives dashboard counters. A task is overdue when its due
// date is in the past and it isn't done; upcoming when it is due within the
// next seven days and isn't done.
func ComputeStats(tasks []Task, now time.Time) Stats {
	st := Stats{
		Total:      len(tasks),
		ByStatus:   map[Status]int{StatusToDo: 0, StatusInProgress: 0, StatusDone: 0},
		ByPriority: map[Priority]int{PriorityLow: 0, PriorityMedium: 0, PriorityHigh: 0},
	}
	for _, t := range tasks {
		st.ByStatus[t.Status]++
		st.ByPriority[t.Priority]++
		if t.Status == StatusDone {
			st.Completed++
			continue
		}
		if t.DueDate == nil {
			continue
		}
		switch {
		case t.DueDate.Before(now):
			st.Overdue++
		case t.DueDate.Sub(now) <= upcomingWindow:
			st.Upcoming++
		}
	}
	return st
}

// SameDay reports whether a and b fall on the same calendar day in a's
// location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ParseDay reads a due date. A bare YYYY-MM-DD is midnight of that day in
// loc; a full RFC 3339 timestamp keeps its instant and is shown in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation(DayLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidTask, s)
	}
	return t, nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DueOn filters tasks whose due date falls on day, earliest due first.
func DueOn(tasks []Task, day time.Time) []Task {
	out := []Task{}
	for _, t := range tasks {
		if t.DueDate != nil && SameDay(day, *t.DueDate) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out
}

// Search matches query case-insensitively against titles and descriptions.
// An empty query matches everything.
func Search(tasks []Task, query string) []Task {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []Task{}
	for _, t := range tasks {
		if q == "" || strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
			out = append(out, t)
		}
	}
	return out
}
