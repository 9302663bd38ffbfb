// Package login drives the login challenge: auto-accept remembered subjects,
// otherwise collect and check credentials.
package login

import (
	"context"
	"errors"
	"strings"

	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/filemaker"
	"github.com/sing3demons/oryfm/internal/hydra"
)

const (
	MethodEmail     = "email"
	MethodBasicAuth = "basic-auth"
)

// ErrInvalidCredentials covers both an unknown identifier and a wrong
// password.
var ErrInvalidCredentials = errors.New("invalid_credentials")

// Messages shown on the form. They double as label keys.
const (
	MsgEmailRequired      = "Valid email address required"
	MsgUsernameRequired   = "Username required"
	MsgPasswordRequired   = "Password required"
	MsgInvalidCredentials = "Invalid credentials"
)

type Form struct {
	Challenge    string `form:"challenge"`
	EmailAddress string `form:"emailAddress"`
	Username     string `form:"username"`
	Password     string `form:"password"`
	Remember     bool   `form:"remember"`
}

// Identifier is the field the configured method logs in with.
func (f Form) Identifier(method string) string {
	if method == MethodBasicAuth {
		return f.Username
	}
	return f.EmailAddress
}

// ValidationError lists one message per invalid field.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// Step is the result of one orchestrator call: either a redirect back to the
// authorization server or a request that still needs the form.
type Step struct {
	RedirectTo string
	Request    *hydra.LoginRequest
}

type HydraClient interface {
	GetLoginRequest(ctx context.Context, challenge string) (*hydra.LoginRequest, error)
	AcceptLoginRequest(ctx context.Context, challenge string, body hydra.AcceptLoginRequest) (*hydra.CompletedRequest, error)
}

type UserStore interface {
	GetUser(ctx context.Context, field filemaker.UserField, value string) (*filemaker.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*filemaker.User, error)
	SetPasswordHash(ctx context.Context, userID, passwordHash string) (bool, error)
}

// Credentials is satisfied by *credential.Policy.
type Credentials interface {
	Verify(password, hash string) bool
	NeedsRehash(hash string) bool
	Hash(password string) (string, error)
}

type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}
