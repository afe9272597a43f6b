// Package auth holds the credential primitives: password hashing, session
// tokens, their cookie transport, and the optional revocation set.
package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordCost is the bcrypt work factor used for every new digest.
const PasswordCost = 10

// PasswordHasher hashes and verifies passwords with bcrypt.
// At most a fixed number of bcrypt operations run at the same time; callers
// beyond that wait (or give up when their context ends).
type PasswordHasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewPasswordHasher returns a hasher admitting up to concurrency operations at once.
func NewPasswordHasher(concurrency int) *PasswordHasher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PasswordHasher{
		cost: PasswordCost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}
}

// Hash returns a salted bcrypt digest of plaintext.
func (h *PasswordHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest or a
// cancelled context is a mismatch, not an error.
func (h *PasswordHasher) Verify(ctx context.Context, plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		// malformed or foreign digest
		return false
	}
	return err == nil
}
