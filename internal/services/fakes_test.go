package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/teamtasks/apiserver/internal/store"
	"github.com/teamtasks/apiserver/types"
)

var errStoreDown = errors.New("connection refused")

type fakeHasher struct{}

func (fakeHasher) Hash(_ context.Context, plaintext string) (string, error) {
	return "hashed:" + plaintext, nil
}

func (fakeHasher) Verify(_ context.Context, plaintext, digest string) bool {
	return digest == "hashed:"+plaintext
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]types.User
	err    error
}

func newFakeUserRepo(users ...types.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[int64]types.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
		repo.nextID = max(repo.nextID, u.ID)
	}
	return repo
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetIdentity(ctx context.Context, id int64) (types.Identity, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}
	return types.Identity{ID: u.ID, Name: u.Name, Email: u.Email, IsAdmin: u.IsAdmin, Role: u.Role, Title: u.Title, IsActive: u.IsActive}, nil
}

func (r *fakeUserRepo) List(_ context.Context) ([]types.TeamMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	members := make([]types.TeamMember, 0, len(r.users))
	for _, u := range r.users {
		members = append(members, types.TeamMember{ID: u.ID, Name: u.Name, Title: u.Title, Role: u.Role, Email: u.Email, IsActive: u.IsActive})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, id int64, name, title, role string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if name != "" {
		u.Name = name
	}
	if title != "" {
		u.Title = title
	}
	if role != "" {
		u.Role = role
	}
	r.users[id] = u
	return u, nil
}

func (r *fakeUserRepo) mutate(id int64, fn func(*types.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	return r.mutate(id, func(u *types.User) { u.PasswordHash = passwordHash })
}

func (r *fakeUserRepo) SetActive(_ context.Context, id int64, active bool) error {
	return r.mutate(id, func(u *types.User) { u.IsActive = active })
}

func (r *fakeUserRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// fakeNotificationRepo applies the same conditional updates as the SQL
// repository, each under one lock.
type fakeNotificationRepo struct {
	mu            sync.Mutex
	nextID        int64
	notifications map[int64]*types.Notification
	tasks         map[int64]string
	err           error
}

func newFakeNotificationRepo(notifications ...types.Notification) *fakeNotificationRepo {
	repo := &fakeNotificationRepo{
		notifications: map[int64]*types.Notification{},
		tasks:         map[int64]string{},
	}
	for i := range notifications {
		n := notifications[i]
		repo.notifications[n.ID] = &n
		repo.nextID = max(repo.nextID, n.ID)
	}
	return repo
}

func (r *fakeNotificationRepo) ListUnread(_ context.Context, userID int64) ([]types.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []types.Notification
	for _, n := range r.notifications {
		if slices.Contains(n.Team, userID) && !slices.Contains(n.ReadBy, userID) {
			copied := *n
			copied.ReadBy = slices.Clone(n.ReadBy)
			out = append(out, copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeNotificationRepo) AddReader(_ context.Context, id, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	n, ok := r.notifications[id]
	if !ok || !slices.Contains(n.Team, userID) || slices.Contains(n.ReadBy, userID) {
		return false, nil
	}
	n.ReadBy = append(n.ReadBy, userID)
	return true, nil
}

func (r *fakeNotificationRepo) AddReaderToAll(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var changed int64
	for _, n := range r.notifications {
		if slices.Contains(n.Team, userID) && !slices.Contains(n.ReadBy, userID) {
			n.ReadBy = append(n.ReadBy, userID)
			changed++
		}
	}
	return changed, nil
}

func (r *fakeNotificationRepo) ExistsForRecipient(_ context.Context, id, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	n, ok := r.notifications[id]
	return ok && slices.Contains(n.Team, userID), nil
}

func (r *fakeNotificationRepo) Create(_ context.Context, input types.NewNotification) (types.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.Notification{}, r.err
	}
	r.nextID++
	n := &types.Notification{
		ID:     r.nextID,
		Team:   input.Team,
		TaskID: input.TaskID,
		Text:   input.Text,
		Type:   input.Type,
		ReadBy: []int64{},
	}
	if input.TaskID != nil {
		n.TaskTitle = r.tasks[*input.TaskID]
	}
	r.notifications[n.ID] = n
	return *n, nil
}

func (r *fakeNotificationRepo) UpsertTask(_ context.Context, id int64, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tasks[id] = strings.TrimSpace(title)
	return nil
}

func (r *fakeNotificationRepo) readers(id int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.notifications[id].ReadBy)
}
