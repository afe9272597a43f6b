package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/teamtasks/apiserver/internal/auth"
	"github.com/teamtasks/apiserver/internal/services"
	"github.com/teamtasks/apiserver/internal/store"
	"github.com/teamtasks/apiserver/types"
)

const testSecret = "test-secret"

var errStoreDown = errors.New("connection refused")

type plainHasher struct{}

func (plainHasher) Hash(_ context.Context, plaintext string) (string, error) {
	return "hashed:" + plaintext, nil
}

func (plainHasher) Verify(_ context.Context, plaintext, digest string) bool {
	return digest == "hashed:"+plaintext
}

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]types.User
	err    error
}

func (m *memUsers) lookup(match func(types.User) bool) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	for _, u := range m.byID {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id int64) (types.User, error) {
	return m.lookup(func(u types.User) bool { return u.ID == id })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	return m.lookup(func(u types.User) bool { return u.Email == email })
}

func (m *memUsers) GetIdentity(ctx context.Context, id int64) (types.Identity, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}
	return types.Identity{ID: u.ID, Name: u.Name, Email: u.Email, IsAdmin: u.IsAdmin, IsActive: u.IsActive}, nil
}

func (m *memUsers) List(_ context.Context) ([]types.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.TeamMember
	for _, u := range m.byID {
		out = append(out, types.TeamMember{ID: u.ID, Name: u.Name, Email: u.Email, IsActive: u.IsActive})
	}
	slices.SortFunc(out, func(a, b types.TeamMember) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user.ID = m.nextID
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) update(id int64, fn func(*types.User)) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	fn(&u)
	m.byID[id] = u
	return u, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id int64, name, title, role string) (types.User, error) {
	return m.update(id, func(u *types.User) {
		if name != "" {
			u.Name = name
		}
		if title != "" {
			u.Title = title
		}
		if role != "" {
			u.Role = role
		}
	})
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	_, err := m.update(id, func(u *types.User) { u.PasswordHash = hash })
	return err
}

func (m *memUsers) SetActive(_ context.Context, id int64, active bool) error {
	_, err := m.update(id, func(u *types.User) { u.IsActive = active })
	return err
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memNotifications struct {
	mu    sync.Mutex
	items []*types.Notification
}

func (m *memNotifications) ListUnread(_ context.Context, userID int64) ([]types.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Notification
	for _, n := range m.items {
		if slices.Contains(n.Team, userID) && !slices.Contains(n.ReadBy, userID) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memNotifications) AddReader(_ context.Context, id, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.ID == id && slices.Contains(n.Team, userID) && !slices.Contains(n.ReadBy, userID) {
			n.ReadBy = append(n.ReadBy, userID)
			return true, nil
		}
	}
	return false, nil
}

func (m *memNotifications) AddReaderToAll(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed int64
	for _, n := range m.items {
		if slices.Contains(n.Team, userID) && !slices.Contains(n.ReadBy, userID) {
			n.ReadBy = append(n.ReadBy, userID)
			changed++
		}
	}
	return changed, nil
}

func (m *memNotifications) ExistsForRecipient(_ context.Context, id, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.ID == id && slices.Contains(n.Team, userID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memNotifications) Create(_ context.Context, input types.NewNotification) (types.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := &types.Notification{ID: int64(len(m.items) + 1), Team: input.Team, Text: input.Text, Type: input.Type, ReadBy: []int64{}}
	m.items = append(m.items, n)
	return *n, nil
}

func (m *memNotifications) UpsertTask(context.Context, int64, string) error { return nil }

type memRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	err     error
}

func (m *memRevoker) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.revoked[tokenID] = until
	return nil
}

func (m *memRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.revoked[tokenID]
	return ok, nil
}

type testAPI struct {
	router        http.Handler
	users         *memUsers
	notifications *memNotifications
	revoker       *memRevoker
	tokens        *auth.TokenService
}

func newTestAPI(t *testing.T, users ...types.User) *testAPI {
	t.Helper()

	tokens, err := auth.NewTokenService(testSecret, auth.SessionTTL)
	require.NoError(t, err)

	api := &testAPI{
		users:         &memUsers{byID: map[int64]types.User{}},
		notifications: &memNotifications{},
		revoker:       &memRevoker{revoked: map[string]time.Time{}},
		tokens:        tokens,
	}
	for _, u := range users {
		api.users.byID[u.ID] = u
		api.users.nextID = max(api.users.nextID, u.ID)
	}

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/api/user", func(r chi.Router) {
		UserRouter(r, UserRouterConfig{
			Users:         services.NewUserService(api.users, plainHasher{}),
			Notifications: services.NewNotificationService(api.notifications),
			Tokens:        tokens,
			Cookie:        auth.SessionCookie{Secure: true, MaxAge: auth.SessionTTL},
			Revoker:       api.revoker,
		})
	})
	api.router = router
	return api
}

func member(id int64, email, password string, admin bool) types.User {
	return types.User{
		ID:           id,
		Name:         "Member " + email,
		Email:        email,
		PasswordHash: "hashed:" + password,
		IsAdmin:      admin,
		IsActive:     true,
	}
}

func (a *testAPI) sessionFor(t *testing.T, userID int64) *http.Cookie {
	t.Helper()
	token, _, err := a.tokens.Issue(userID)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) StatusResponse {
	t.Helper()
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
