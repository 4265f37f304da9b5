package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/ushadow-io/ushadow/core/utils"
)

// claims is the JWT payload spec §4.9 documents: {sub, email, roles,
// exp, iss=ushadow, aud}.
type claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// LocalBroker is the local JWT auth mode: password login against a
// user collection, first-admin setup, and ushadow-issued tokens
// signed with a long-lived symmetric secret held at
// security.auth_secret_key.
type LocalBroker struct {
	users     UserRepository
	secret    []byte
	tokenTTL  time.Duration
	logger    *utils.Logger
	signupsOn bool
}

// NewLocalBroker builds a LocalBroker. signupsEnabled controls whether
// Signup accepts new registrations once the first administrator
// exists (spec §4.9: "subsequent sign-ups may be disabled").
func NewLocalBroker(users UserRepository, secret string, signupsEnabled bool) *LocalBroker {
	return &LocalBroker{
		users:     users,
		secret:    []byte(secret),
		tokenTTL:  24 * time.Hour,
		logger:    utils.NewLogger("auth-local"),
		signupsOn: signupsEnabled,
	}
}

// SetupRequired reports whether no administrator has been created
// yet, backing the GET /api/auth/setup/status endpoint.
func (b *LocalBroker) SetupRequired() (bool, error) {
	count, err := b.users.Count()
	if err != nil {
		return false, fmt.Errorf("checking existing users: %w", err)
	}
	return count == 0, nil
}

// Setup creates the first administrator account. It fails if any user
// already exists, matching the spec's "/setup endpoint creates the
// first administrator" being a one-time bootstrap operation.
func (b *LocalBroker) Setup(email, password string) (Principal, error) {
	count, err := b.users.Count()
	if err != nil {
		return Principal{}, fmt.Errorf("checking existing users: %w", err)
	}
	if count > 0 {
		return Principal{}, fmt.Errorf("setup already completed")
	}
	return b.createUser(email, password, []string{"admin"})
}

// Signup registers an additional non-admin user, when enabled.
func (b *LocalBroker) Signup(email, password string) (Principal, error) {
	if !b.signupsOn {
		return Principal{}, fmt.Errorf("sign-ups are disabled")
	}
	return b.createUser(email, password, []string{"user"})
}

func (b *LocalBroker) createUser(email, password string, roles []string) (Principal, error) {
	if _, exists := b.users.GetByEmail(email); exists {
		return Principal{}, fmt.Errorf("account %s already exists", email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Principal{}, fmt.Errorf("hashing password: %w", err)
	}
	u := User{ID: email, Email: email, PasswordHash: string(hash), Roles: roles, CreatedAt: time.Now()}
	if err := b.users.Insert(u); err != nil {
		return Principal{}, fmt.Errorf("creating account %s: %w", email, err)
	}
	return b.mint(u)
}

// Login validates email/password and mints a token.
func (b *LocalBroker) Login(email, password string) (Principal, error) {
	u, ok := b.users.GetByEmail(email)
	if !ok {
		return Principal{}, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Principal{}, fmt.Errorf("invalid credentials")
	}
	return b.mint(u)
}

func (b *LocalBroker) mint(u User) (Principal, error) {
	now := time.Now()
	c := claims{
		Email: u.Email,
		Roles: u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(b.secret)
	if err != nil {
		return Principal{}, fmt.Errorf("signing token: %w", err)
	}
	return Principal{Subject: u.ID, Email: u.Email, Roles: u.Roles, Token: signed}, nil
}

// MintServiceToken issues a short-lived ushadow-issued token carrying
// subject, for onward calls to subsystems that only accept local
// tokens (spec §4.9's federated-mode service token).
func (b *LocalBroker) MintServiceToken(subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(b.secret)
}

// ValidateLocalToken parses and verifies an ushadow-issued JWT,
// checking the issuer per spec §4.9's "it is an ushadow-issued JWT
// (issuer check)" branch.
func (b *LocalBroker) ValidateLocalToken(tokenString string) (Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if c.Issuer != tokenIssuer {
		return Principal{}, fmt.Errorf("unrecognised issuer %q", c.Issuer)
	}
	return Principal{Subject: c.Subject, Email: c.Email, Roles: c.Roles, Token: tokenString}, nil
}
