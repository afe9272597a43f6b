package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTTL is the lifetime of a session token.
const SessionTTL = 24 * time.Hour

// ErrInvalidToken is returned for every token that cannot be trusted:
// bad signature, malformed, wrong algorithm, missing subject, or expired.
var ErrInvalidToken = errors.New("invalid token")

// Claims is what a verified session token asserts.
type Claims struct {
	UserID    int64
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 session tokens.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a TokenService signing with secret.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of s that reads the time from now.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	clone := *s
	clone.now = now
	return &clone
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID expiring exactly one TTL from now.
func (s *TokenService) Issue(userID int64) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := sessionClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        uuid.NewString(),
		IssuedAt:  &sessionDate{now},
		ExpiresAt: &sessionDate{expiresAt},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of tokenString.
// All failures collapse into ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	parsed := sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(parsed.Subject), 10, 64)
	if err != nil || userID < 1 {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		UserID:    userID,
		TokenID:   parsed.ID,
		ExpiresAt: parsed.ExpiresAt.Time,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}

// sessionClaims carries iat and exp with sub-second precision so a token
// issued at t is accepted for exactly [t, t+ttl). jwt.NumericDate would
// round both down to whole seconds.
type sessionClaims struct {
	Subject   string       `json:"sub"`
	ID        string       `json:"jti,omitempty"`
	IssuedAt  *sessionDate `json:"iat,omitempty"`
	ExpiresAt *sessionDate `json:"exp,omitempty"`
}

func (c sessionClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return c.ExpiresAt.numericDate(), nil
}

func (c sessionClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return c.IssuedAt.numericDate(), nil
}

func (c sessionClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c sessionClaims) GetIssuer() (string, error)              { return "", nil }
func (c sessionClaims) GetSubject() (string, error)             { return c.Subject, nil }
func (c sessionClaims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

// sessionDate is a NumericDate encoded as decimal seconds with up to
// nanosecond precision, e.g. 1772452800.9.
type sessionDate struct {
	time.Time
}

func (d *sessionDate) numericDate() *jwt.NumericDate {
	if d == nil {
		return nil
	}
	return &jwt.NumericDate{Time: d.Time}
}

func (d sessionDate) MarshalJSON() ([]byte, error) {
	sec, nsec := d.Unix(), d.Nanosecond()
	if d.Time.Before(time.Unix(0, 0)) {
		return nil, errors.New("session date before epoch")
	}
	if nsec == 0 {
		return strconv.AppendInt(nil, sec, 10), nil
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", nsec), "0")
	return []byte(strconv.FormatInt(sec, 10) + "." + frac), nil
}

func (d *sessionDate) UnmarshalJSON(b []byte) error {
	whole, frac, _ := strings.Cut(string(b), ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || sec < 0 {
		return fmt.Errorf("invalid numeric date %q", b)
	}

	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		nsec, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || nsec < 0 {
			return fmt.Errorf("invalid numeric date %q", b)
		}
	}

	d.Time = time.Unix(sec, nsec)
	return nil
}
