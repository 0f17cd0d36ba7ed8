package domain

import (
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// DailyEntries maps a Monday-based day index ("0".."6") to free text.
type DailyEntries map[string]string

// WeeklySummary is the journal of one week: a keyword, one entry per day and
// a closing reflection.
type WeeklySummary struct {
	ID           int64        `json:"id"`
	UserID       string       `json:"userId,omitempty"`
	WeekID       string       `json:"weekId"`
	Keyword      *string      `json:"keyword"`
	DailyEntries DailyEntries `json:"dailyEntries"`
	Reflection   *string      `json:"reflection"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// SummaryPatch updates summary fields independently. DailyEntries is merged
// per day; a nil map leaves every day unchanged.
type SummaryPatch struct {
	Keyword      OptionalString `json:"keyword"`
	DailyEntries DailyEntries   `json:"dailyEntries"`
	Reflection   OptionalString `json:"reflection"`
}

// Empty reports whether the patch changes nothing.
func (p SummaryPatch) Empty() bool {
	return !p.Keyword.Set && p.DailyEntries == nil && !p.Reflection.Set
}

// Validate rejects empty patches and day keys outside 0..6.
func (p SummaryPatch) Validate() error {
	if p.Empty() {
		return invalid("patch", "no fields to update")
	}
	for k := range p.DailyEntries {
		if _, err := ParseDayIndex(k); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the patch into s. The day map of s is never modified in place.
func (p SummaryPatch) Apply(s WeeklySummary) WeeklySummary {
	s.Keyword = p.Keyword.ApplyTo(s.Keyword)
	s.Reflection = p.Reflection.ApplyTo(s.Reflection)
	if p.DailyEntries != nil {
		s.DailyEntries = s.DailyEntries.Merge(p.DailyEntries)
	}
	return s
}

// MarshalJSON omits fields that are not part of the update.
func (p SummaryPatch) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 3)
	if p.Keyword.Set {
		body["keyword"] = p.Keyword
	}
	if p.DailyEntries != nil {
		body["dailyEntries"] = p.DailyEntries
	}
	if p.Reflection.Set {
		body["reflection"] = p.Reflection
	}
	return sonic.Marshal(body)
}

// Merge returns a new map holding e overlaid with upd.
func (e DailyEntries) Merge(upd DailyEntries) DailyEntries {
	out := make(DailyEntries, len(e)+len(upd))
	for k, v := range e {
		out[k] = v
	}
	for k, v := range upd {
		out[k] = v
	}
	return out
}

// Encode renders the entries for storage in a text column.
func (e DailyEntries) Encode() string {
	if len(e) == 0 {
		return "{}"
	}
	data, err := sonic.ConfigStd.Marshal(map[string]string(e))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseDailyEntries decodes a stored text column. Malformed input yields an
// empty map together with the decode error so callers can log and move on.
func ParseDailyEntries(raw string) (DailyEntries, error) {
	out := DailyEntries{}
	if raw == "" {
		return out, nil
	}
	if err := sonic.UnmarshalString(raw, (*map[string]string)(&out)); err != nil {
		return DailyEntries{}, err
	}
	return out, nil
}

// ParseDayIndex validates a day key and returns its index.
func ParseDayIndex(key string) (int, error) {
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 || n >= DaysPerWeek {
		return 0, invalid("day", "must be between 0 and 6")
	}
	return n, nil
}

// DaysPerWeek is the number of day slots in week-scoped maps.
const DaysPerWeek = 7
