package services

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/teamtasks/apiserver/types"
)

// NotificationRepository defines persistence operations for notifications.
// AddReader and AddReaderToAll must be conditional single-step updates so
// concurrent marks never duplicate or drop a reader.
type NotificationRepository interface {
	ListUnread(ctx context.Context, userID int64) ([]types.Notification, error)
	AddReader(ctx context.Context, id, userID int64) (bool, error)
	AddReaderToAll(ctx context.Context, userID int64) (int64, error)
	ExistsForRecipient(ctx context.Context, id, userID int64) (bool, error)
	Create(ctx context.Context, input types.NewNotification) (types.Notification, error)
	UpsertTask(ctx context.Context, id int64, title string) error
}

// NotificationService tracks which team members have read which notifications.
type NotificationService struct {
	repo NotificationRepository
}

func NewNotificationService(repo NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// MarkReadTarget selects either every unread notification or a single one.
type MarkReadTarget struct {
	All bool
	ID  int64
}

// ParseMarkReadTarget interprets the read-noti query parameters.
func ParseMarkReadTarget(isReadType, id string) (MarkReadTarget, error) {
	if strings.EqualFold(strings.TrimSpace(isReadType), "all") {
		return MarkReadTarget{All: true}, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return MarkReadTarget{}, validationError("notification id is required")
	}
	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil || parsed < 1 {
		return MarkReadTarget{}, validationError("notification id %q is invalid", id)
	}
	return MarkReadTarget{ID: parsed}, nil
}

// ListUnread returns the notifications addressed to userID that userID has
// not read yet, oldest first.
func (s *NotificationService) ListUnread(ctx context.Context, userID int64) ([]types.Notification, error) {
	notifications, err := s.repo.ListUnread(ctx, userID)
	if err != nil {
		return nil, storeError("list notifications", err)
	}
	if notifications == nil {
		notifications = []types.Notification{}
	}
	return notifications, nil
}

// MarkRead adds userID to the read set of the target notifications and
// returns how many changed. Marking an already-read notification is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, userID int64, target MarkReadTarget) (int64, error) {
	if target.All {
		n, err := s.repo.AddReaderToAll(ctx, userID)
		if err != nil {
			return 0, storeError("mark all read", err)
		}
		return n, nil
	}

	changed, err := s.repo.AddReader(ctx, target.ID, userID)
	if err != nil {
		return 0, storeError("mark read", err)
	}
	if changed {
		return 1, nil
	}

	exists, err := s.repo.ExistsForRecipient(ctx, target.ID, userID)
	if err != nil {
		return 0, storeError("find notification", err)
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, nil
}

// Create stores a notification with an empty read set.
func (s *NotificationService) Create(ctx context.Context, input types.NewNotification) (types.Notification, error) {
	input.Text = strings.TrimSpace(input.Text)
	if input.Text == "" {
		return types.Notification{}, validationError("notification text is required")
	}
	if input.Type == "" {
		input.Type = types.NotificationAlert
	}
	if !input.Type.Valid() {
		return types.Notification{}, validationError("notification type %q is invalid", input.Type)
	}

	team := make([]int64, 0, len(input.Team))
	for _, id := range input.Team {
		if id > 0 {
			team = append(team, id)
		}
	}
	slices.Sort(team)
	input.Team = slices.Compact(team)
	if len(input.Team) == 0 {
		return types.Notification{}, validationError("notification needs at least one recipient")
	}

	notification, err := s.repo.Create(ctx, input)
	if err != nil {
		return types.Notification{}, storeError("create notification", err)
	}
	return notification, nil
}
