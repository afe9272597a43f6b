package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"

	"github.com/teamtasks/apiserver/internal/store"
	"github.com/teamtasks/apiserver/types"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72 // bcrypt input limit
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetIdentity(ctx context.Context, id int64) (types.Identity, error)
	List(ctx context.Context) ([]types.TeamMember, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id int64, name, title, role string) (types.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, digest string) bool
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(repo UserRepository, hasher PasswordHasher) *UserService {
	return &UserService{repo: repo, hasher: hasher}
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	IsAdmin  bool
	Role     string
	Title    string
}

// ProfilePatch carries the profile fields a caller may change.
// ID selects the target user and is honoured for admins only.
type ProfilePatch struct {
	ID    int64
	Name  string
	Title string
	Role  string
}

// Register creates an account. IsAdmin is only granted when caller is an
// authenticated admin.
func (s *UserService) Register(ctx context.Context, in RegisterInput, caller *types.Identity) (types.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	in.Title = strings.TrimSpace(in.Title)

	if in.Name == "" {
		return types.User{}, validationError("name is required")
	}
	if err := validateEmail(in.Email); err != nil {
		return types.User{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return types.User{}, err
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return types.User{}, ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, storeError("check email", err)
	}

	hashed, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashed,
		IsAdmin:      in.IsAdmin && caller != nil && caller.IsAdmin,
		Role:         in.Role,
		Title:        in.Title,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, storeError("create user", err)
	}

	user.PasswordHash = ""
	return user, nil
}

// Login checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (types.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// spend the same bcrypt time as a real comparison
			s.hasher.Verify(ctx, password, s.timingHash(ctx))
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, storeError("find user", err)
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		return types.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return types.User{}, ErrAccountDisabled
	}

	user.PasswordHash = ""
	return user, nil
}

// Identity resolves the caller for a verified session subject.
func (s *UserService) Identity(ctx context.Context, id int64) (types.Identity, error) {
	identity, err := s.repo.GetIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, storeError("load identity", err)
	}
	return identity, nil
}

// ListTeam returns every user in listing form.
func (s *UserService) ListTeam(ctx context.Context) ([]types.TeamMember, error) {
	members, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}
	return members, nil
}

// UpdateProfile changes name, title and role. Non-admins always edit their
// own record; admins edit patch.ID when it is set.
func (s *UserService) UpdateProfile(ctx context.Context, caller types.Identity, patch ProfilePatch) (types.User, error) {
	target := caller.ID
	if caller.IsAdmin && patch.ID != 0 {
		target = patch.ID
	}

	user, err := s.repo.UpdateProfile(
		ctx,
		target,
		strings.TrimSpace(patch.Name),
		strings.TrimSpace(patch.Title),
		strings.TrimSpace(patch.Role),
	)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, storeError("update profile", err)
	}

	user.PasswordHash = ""
	return user, nil
}

// ChangePassword replaces the caller's password. The current password is
// not asked for.
func (s *UserService) ChangePassword(ctx context.Context, caller types.Identity, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePassword(ctx, caller.ID, hashed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return storeError("update password", err)
	}
	return nil
}

// SetActive enables or disables an account. Callers must gate it on admin.
func (s *UserService) SetActive(ctx context.Context, targetID int64, active bool) error {
	if err := s.repo.SetActive(ctx, targetID, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return storeError("set active", err)
	}
	return nil
}

// Delete removes an account permanently. Callers must gate it on admin.
func (s *UserService) Delete(ctx context.Context, targetID int64) error {
	if err := s.repo.Delete(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return storeError("delete user", err)
	}
	return nil
}

func (s *UserService) timingHash(ctx context.Context) string {
	s.dummyOnce.Do(func() {
		// detached so a cancelled first caller cannot leave the hash empty
		s.dummyHash, _ = s.hasher.Hash(context.WithoutCancel(ctx), "timing-equaliser")
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("email is invalid")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return validationError("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return validationError("password must be at most %d bytes", maxPasswordLength)
	}
	return nil
}
