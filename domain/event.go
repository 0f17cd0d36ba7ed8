package domain

// Change event types published after successful writes.
const (
	EntityTask     = "task"
	EntityNote     = "note"
	EntitySummary  = "weekly-summary"
	EntitySettings = "week-settings"

	TaskCreated         = "task-created"
	TaskUpdated         = "task-updated"
	TaskDeleted         = "task-deleted"
	NoteUpserted        = "note-upserted"
	SummaryUpserted     = "weekly-summary-upserted"
	SettingsUpdated     = "week-settings-updated"
	CustomImageUploaded = "custom-image-uploaded"
)

// ChangeEvent describes a confirmed write so downstream consumers can refresh
// whatever they derive from it.
type ChangeEvent struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	EntityType string `json:"entityType"`
	Type       string `json:"type"`
	// EntityID is the task id for task events and the week id otherwise.
	EntityID string `json:"entityId"`
	// WeekIDs lists every week whose views are affected; a cross-week move names both.
	WeekIDs   []string `json:"weekIds"`
	Timestamp int64    `json:"timestamp"`
}
