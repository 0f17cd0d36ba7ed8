package planner

import (
	"strings"

	"weekplan/week"
)

// Kind names the query a cache key belongs to.
type Kind string

const (
	KindTasks    Kind = "tasks"
	KindNote     Kind = "note"
	KindSummary  Kind = "summary"
	KindSettings Kind = "settings"
)

// Key addresses one cached query result: the task list of a date range, or a
// week-scoped entity by week id.
type Key struct {
	Kind  Kind
	Param string
}

func (k Key) String() string { return string(k.Kind) + ":" + k.Param }

// TasksKey addresses the task list of a week's Monday..Sunday range.
func TasksKey(w week.Week) Key {
	return Key{Kind: KindTasks, Param: w.StartDate() + ".." + w.EndDate()}
}

// TasksKeyForDate addresses the task list of the week containing date.
func TasksKeyForDate(date string) (Key, error) {
	w, err := week.OfDate(date)
	if err != nil {
		return Key{}, err
	}
	return TasksKey(w), nil
}

func NoteKey(weekID string) Key     { return Key{Kind: KindNote, Param: weekID} }
func SummaryKey(weekID string) Key  { return Key{Kind: KindSummary, Param: weekID} }
func SettingsKey(weekID string) Key { return Key{Kind: KindSettings, Param: weekID} }

// WeekKeys lists every key the week view of w reads.
func WeekKeys(w week.Week) []Key {
	return []Key{TasksKey(w), NoteKey(w.ID), SummaryKey(w.ID), SettingsKey(w.ID)}
}

// Range splits a task key back into its start and end dates.
func (k Key) Range() (start, end string, ok bool) {
	if k.Kind != KindTasks {
		return "", "", false
	}
	start, end, ok = strings.Cut(k.Param, "..")
	return start, end, ok
}

// contains reports whether a task key's range covers date.
func (k Key) contains(date string) bool {
	start, end, ok := k.Range()
	return ok && date >= start && date <= end
}
