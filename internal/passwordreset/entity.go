// Package passwordreset lets a user of the email method pick a new password
// through a link mailed by the identity store.
package passwordreset

import (
	"context"
	"errors"
	"strings"

	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/filemaker"
	"github.com/sing3demons/oryfm/internal/hydra"
)

var (
	ErrUnknownEmail = errors.New("unknown_email_address")
	ErrInvalidToken = errors.New("invalid_reset_token")
)

const (
	MsgEmailRequired    = "Valid email address required"
	MsgUnknownEmail     = "Unknown email address provided"
	MsgPasswordTooShort = "Password must be at least 8 characters long"
	MsgPasswordMismatch = "Passwords do not match"
)

// TokenPlaceholder is substituted by the identity store when it builds the
// mailed link.
const TokenPlaceholder = "{resetToken}"

type RequestForm struct {
	EmailAddress string `form:"emailAddress" validate:"required,email"`
}

type SetForm struct {
	Password        string `form:"password" validate:"min=8"`
	ConfirmPassword string `form:"confirmPassword" validate:"eqfield=Password"`
}

type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

type UserStore interface {
	RequestPasswordResetLink(ctx context.Context, emailAddress, uriTemplate string, returnLink bool) (filemaker.ResetLink, error)
	ValidatePasswordResetToken(ctx context.Context, resetToken string) (bool, error)
	ResetPasswordHash(ctx context.Context, resetToken, passwordHash string) (bool, error)
}

type ClientLookup interface {
	GetClientByID(ctx context.Context, clientID string) (*hydra.OAuth2Client, error)
}

type Hasher interface {
	Hash(password string) (string, error)
}

type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}
