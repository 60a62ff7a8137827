package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/entity"
	userrepo "github.com/Additional-Code/handoff/internal/repository/user"
	"github.com/Additional-Code/handoff/internal/signer"
)

// SessionAudience separates session tokens from handoff tokens signed with
// the same key.
const SessionAudience = "session"

// ErrInvalidCredentials covers both unknown user and wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Module provides the authenticator to Fx.
var Module = fx.Provide(NewAuthenticator)

// UserStore is the read side of the user repository used here.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

// Principal is the identity carried in a session.
type Principal struct {
	UserID   int64  `json:"user_id" validate:"required"`
	Username string `json:"username" validate:"required"`
	Role     Role   `json:"role" validate:"required"`
}

// Authenticator checks credentials and issues sessions.
type Authenticator struct {
	users      UserStore
	signer     *signer.Signer
	sessionTTL time.Duration
}

// Params defines dependencies for constructing Authenticator.
type Params struct {
	fx.In

	Users  *userrepo.Repository
	Signer *signer.Signer
	Config config.Config
}

// NewAuthenticator wires an Authenticator from the Fx graph.
func NewAuthenticator(p Params) *Authenticator {
	return New(p.Users, p.Signer, p.Config.Auth.SessionTTL)
}

// New builds an Authenticator.
func New(users UserStore, s *signer.Signer, sessionTTL time.Duration) *Authenticator {
	return &Authenticator{users: users, signer: s, sessionTTL: sessionTTL}
}

// VerifyCredentials returns the user when password matches. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (a *Authenticator) VerifyCredentials(ctx context.Context, username, password string) (*entity.User, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if errors.Is(err, userrepo.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login verifies credentials and issues a session token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, time.Time, Principal, error) {
	user, err := a.VerifyCredentials(ctx, username, password)
	if err != nil {
		return "", time.Time{}, Principal{}, err
	}
	role, err := ParseRole(user.Role)
	if err != nil {
		return "", time.Time{}, Principal{}, err
	}
	principal := Principal{UserID: user.ID, Username: user.Username, Role: role}
	token, exp, err := a.signer.Sign(SessionAudience, principal, a.sessionTTL)
	if err != nil {
		return "", time.Time{}, Principal{}, err
	}
	return token, exp, principal, nil
}

// ParseSession verifies a session token.
func (a *Authenticator) ParseSession(token string) (Principal, error) {
	var p Principal
	if err := a.signer.Verify(token, SessionAudience, &p); err != nil {
		return Principal{}, err
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return Principal{}, signer.ErrMalformed
	}
	return p, nil
}
