package domain

import (
	"time"

	"weekplan/week"
)

// Note is the free text attached to one week of one user.
type Note struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	WeekID    string    `json:"weekId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidateWeekID checks that id is a canonical ISO week id such as 2026-W03.
func ValidateWeekID(id string) error {
	if _, err := week.Parse(id); err != nil {
		return invalid("weekId", err.Error())
	}
	return nil
}
