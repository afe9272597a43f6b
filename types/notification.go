package types

import "time"

// NotificationType classifies how a notification is presented.
type NotificationType string

const (
	NotificationAlert   NotificationType = "alert"
	NotificationMessage NotificationType = "message"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationAlert, NotificationMessage:
		return true
	default:
		return false
	}
}

// Notification is a task event fanned out to a team.
type Notification struct {
	// ID is the unique identifier of the notification.
	ID int64 `json:"id" db:"id"`

	// Team lists the user IDs the notification is addressed to.
	Team []int64 `json:"team" db:"team"`

	// TaskID references the originating task, if any.
	TaskID *int64 `json:"taskId,omitempty" db:"task_id"`

	// TaskTitle is the title of the originating task, joined on read.
	TaskTitle string `json:"taskTitle,omitempty" db:"-"`

	// Text is the human-readable message.
	Text string `json:"text" db:"text"`

	// Type is the presentation kind of the notification.
	Type NotificationType `json:"type" db:"type"`

	// ReadBy is the set of user IDs that acknowledged the notification.
	// Entries are only ever appended.
	ReadBy []int64 `json:"readBy" db:"read_by"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// NewNotification is the input for creating a notification.
type NewNotification struct {
	Team   []int64
	TaskID *int64
	Text   string
	Type   NotificationType
}

// TaskEvent is the payload producers publish when something happens to a task.
type TaskEvent struct {
	TaskID int64            `json:"task_id"`
	Title  string           `json:"title"`
	Team   []int64          `json:"team"`
	Text   string           `json:"text"`
	Type   NotificationType `json:"type"`
}
