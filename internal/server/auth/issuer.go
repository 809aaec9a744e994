// Package auth issues and verifies the JWT credentials used by the server,
// hashes refresh tokens for storage and hashes user passwords.
package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is the "iss" claim written into every credential.
const DefaultIssuer = "fooddelivery"

// Subject is the identity a credential is issued for.
type Subject struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

// IssuedToken is a signed credential and the instant it stops being valid.
type IssuedToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Claims is the payload of both credential kinds. Refresh credentials only
// carry the registered claims and Type.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"typ"`
}

// Issuer signs and verifies HS256 credentials. It holds no mutable state and
// is safe for concurrent use.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*Issuer)

// WithClock replaces time.Now when stamping and validating credentials.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithIssuerName overrides DefaultIssuer.
func WithIssuerName(name string) Option {
	return func(i *Issuer) { i.issuer = name }
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		secret:     []byte(secret),
		issuer:     DefaultIssuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// AccessTTL returns the configured access credential lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh credential lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess mints a short-lived access credential carrying the subject's
// profile claims.
func (i *Issuer) IssueAccess(s Subject) (IssuedToken, error) {
	return i.issue(Claims{
		Name:  s.Name,
		Email: s.Email,
		Role:  s.Role,
		Type:  common.TokenTypeAccess,
	}, s.UserID, i.accessTTL)
}

// IssueRefresh mints a refresh credential. Every value is unique because of
// its random jti.
func (i *Issuer) IssueRefresh(s Subject) (IssuedToken, error) {
	return i.issue(Claims{Type: common.TokenTypeRefresh}, s.UserID, i.refreshTTL)
}

func (i *Issuer) issue(claims Claims, userID string, ttl time.Duration) (IssuedToken, error) {
	if len(i.secret) == 0 {
		return IssuedToken{}, common.ErrSigning
	}

	now := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("%w: %v", common.ErrSigning, err)
	}

	return IssuedToken{
		Value:     value,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyAccess checks signature, algorithm, issuer, expiry and type and
// returns the subject the credential was issued for.
func (i *Issuer) VerifyAccess(token string) (Subject, error) {
	c, err := i.verify(token, common.TokenTypeAccess)
	if err != nil {
		return Subject{}, err
	}
	return Subject{UserID: c.Subject, Name: c.Name, Email: c.Email, Role: c.Role}, nil
}

// VerifyRefresh is VerifyAccess for refresh credentials. It only proves the
// value was minted here and has not expired; whether it is still redeemable
// is decided by the credential store.
func (i *Issuer) VerifyRefresh(token string) (string, error) {
	c, err := i.verify(token, common.TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

func (i *Issuer) verify(token, typ string) (*Claims, error) {
	if len(i.secret) == 0 {
		return nil, common.ErrInvalidCredential
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, common.ErrInvalidCredential
	}
	if claims.Type != typ || claims.Subject == "" {
		return nil, common.ErrInvalidCredential
	}
	return claims, nil
}
