package domain

import (
	"sort"
	"strings"
	"time"
)

// TimeBlock is one of the three fixed segments of a day.
type TimeBlock string

const (
	Morning   TimeBlock = "morning"
	Afternoon TimeBlock = "afternoon"
	Evening   TimeBlock = "evening"
)

// TimeBlocks lists the segments in display order.
var TimeBlocks = []TimeBlock{Morning, Afternoon, Evening}

// Valid reports whether b is a known time block.
func (b TimeBlock) Valid() bool {
	switch b {
	case Morning, Afternoon, Evening:
		return true
	}
	return false
}

// ParseTimeBlock converts s into a TimeBlock.
func ParseTimeBlock(s string) (TimeBlock, error) {
	b := TimeBlock(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", invalid("timeBlock", "must be one of morning, afternoon, evening")
	}
	return b, nil
}

// Task represents a single planner item placed on a day and time block.
type Task struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Content   string    `json:"content"`
	Completed bool      `json:"completed"`
	Date      string    `json:"date"`
	TimeBlock TimeBlock `json:"timeBlock"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Provisional reports whether the task carries a locally assigned placeholder id.
func (t Task) Provisional() bool { return t.ID < 0 }

// NewTask carries the fields accepted when creating a task.
type NewTask struct {
	Content   string    `json:"content"`
	Date      string    `json:"date"`
	TimeBlock TimeBlock `json:"timeBlock"`
	SortOrder int       `json:"sortOrder"`
}

// Validate rejects blank content, malformed dates and unknown time blocks.
func (n NewTask) Validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return invalid("content", "must not be empty")
	}
	if err := ValidateDate(n.Date); err != nil {
		return err
	}
	if !n.TimeBlock.Valid() {
		return invalid("timeBlock", "must be one of morning, afternoon, evening")
	}
	if n.SortOrder < 0 {
		return invalid("sortOrder", "must not be negative")
	}
	return nil
}

// TaskPatch carries a partial task update. Nil fields are left unchanged.
type TaskPatch struct {
	Content   *string    `json:"content,omitempty"`
	Completed *bool      `json:"completed,omitempty"`
	Date      *string    `json:"date,omitempty"`
	TimeBlock *TimeBlock `json:"timeBlock,omitempty"`
	SortOrder *int       `json:"sortOrder,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Content == nil && p.Completed == nil && p.Date == nil && p.TimeBlock == nil && p.SortOrder == nil
}

// Validate checks every field present in the patch.
func (p TaskPatch) Validate() error {
	if p.Empty() {
		return invalid("patch", "no fields to update")
	}
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return invalid("content", "must not be empty")
	}
	if p.Date != nil {
		if err := ValidateDate(*p.Date); err != nil {
			return err
		}
	}
	if p.TimeBlock != nil && !p.TimeBlock.Valid() {
		return invalid("timeBlock", "must be one of morning, afternoon, evening")
	}
	if p.SortOrder != nil && *p.SortOrder < 0 {
		return invalid("sortOrder", "must not be negative")
	}
	return nil
}

// Apply returns t with the patch fields merged in.
func (p TaskPatch) Apply(t Task) Task {
	if p.Content != nil {
		t.Content = *p.Content
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.TimeBlock != nil {
		t.TimeBlock = *p.TimeBlock
	}
	if p.SortOrder != nil {
		t.SortOrder = *p.SortOrder
	}
	return t
}

// SortTasks orders tasks by sort order, breaking ties by creation time.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].SortOrder != tasks[j].SortOrder {
			return tasks[i].SortOrder < tasks[j].SortOrder
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// CloneTasks returns a copy of tasks that can be modified without touching the original.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}

// CellCount returns how many tasks sit in the given day and time block.
func CellCount(tasks []Task, date string, block TimeBlock) int {
	n := 0
	for _, t := range tasks {
		if t.Date == date && t.TimeBlock == block {
			n++
		}
	}
	return n
}

// ValidateDate checks that s is a calendar date in YYYY-MM-DD form.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return invalid("date", "must be YYYY-MM-DD")
	}
	return nil
}

// DateLayout is the calendar date format used throughout the API.
const DateLayout = "2006-01-02"
