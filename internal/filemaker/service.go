package filemaker

import (
	"context"
	"errors"

	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/mlog"
)

var ErrUserNotFound = errors.New("user_not_found")

// UserField selects the column getUser matches on.
type UserField string

const (
	FieldID           UserField = "id"
	FieldUsername     UserField = "username"
	FieldEmailAddress UserField = "emailAddress"
)

type User struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

type result struct {
	Result bool `json:"result"`
}

type getUserResult struct {
	Result bool `json:"result"`
	User   User `json:"user"`
}

type resetLinkResult struct {
	Result bool `json:"result"`
	Debug  struct {
		ResetLink string `json:"resetLink"`
	} `json:"debug"`
}

type getUserParams struct {
	Field UserField `json:"field"`
	Value string    `json:"value"`
}

type setPasswordParams struct {
	UserID       string `json:"userId"`
	PasswordHash string `json:"passwordHash"`
}

type resetLinkParams struct {
	EmailAddress string `json:"emailAddress"`
	URITemplate  string `json:"uriTemplate"`
	Debug        bool   `json:"debug"`
}

type resetTokenParams struct {
	ResetToken   string `json:"resetToken"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// ResetLink is the outcome of a reset request. Link is only filled when the
// caller asked for it.
type ResetLink struct {
	Sent bool
	Link string
}

// Service exposes the identity store scripts as typed operations.
type Service struct {
	client *Client
}

func NewService(client *Client) *Service {
	return &Service{client: client}
}

// GetUser returns ErrUserNotFound when the script reports no match.
func (s *Service) GetUser(ctx context.Context, field UserField, value string) (*User, error) {
	return getUser(ctx, s.client, field, value)
}

func getUser(ctx context.Context, c *Client, field UserField, value string) (*User, error) {
	var res getUserResult
	if err := c.Execute(ctx, "getUser", getUserParams{Field: field, Value: value}, &res); err != nil {
		return nil, err
	}
	if !res.Result {
		return nil, ErrUserNotFound
	}
	return &res.User, nil
}

// AuthenticateUser checks username and password by opening a session with
// them. A refused session is ErrAuthentication. The per-user session is
// revoked before returning.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*User, error) {
	local := s.client.WithCredentials(username, password)
	defer func() {
		if err := local.ClearSession(context.WithoutCancel(ctx)); err != nil {
			mlog.L(ctx).Warn(logAction.EXCEPTION("clear per-user filemaker session"), map[string]any{"error": err.Error()})
		}
	}()

	return getUser(ctx, local, FieldUsername, username)
}

// SetPasswordHash replaces the stored hash of a user.
func (s *Service) SetPasswordHash(ctx context.Context, userID, passwordHash string) (bool, error) {
	var res result
	if err := s.client.Execute(ctx, "setPasswordHash", setPasswordParams{UserID: userID, PasswordHash: passwordHash}, &res); err != nil {
		return false, err
	}
	return res.Result, nil
}

// RequestPasswordResetLink asks the store to mail a reset link built from
// uriTemplate. With returnLink the link is handed back as well.
func (s *Service) RequestPasswordResetLink(ctx context.Context, emailAddress, uriTemplate string, returnLink bool) (ResetLink, error) {
	var res resetLinkResult
	params := resetLinkParams{EmailAddress: emailAddress, URITemplate: uriTemplate, Debug: returnLink}
	if err := s.client.Execute(ctx, "requestPasswordResetLink", params, &res); err != nil {
		return ResetLink{}, err
	}
	if !res.Result {
		return ResetLink{}, nil
	}
	link := ResetLink{Sent: true}
	if returnLink {
		link.Link = res.Debug.ResetLink
	}
	return link, nil
}

func (s *Service) ValidatePasswordResetToken(ctx context.Context, resetToken string) (bool, error) {
	var res result
	if err := s.client.Execute(ctx, "validatePasswordResetToken", resetTokenParams{ResetToken: resetToken}, &res); err != nil {
		return false, err
	}
	return res.Result, nil
}

// ResetPasswordHash consumes resetToken and stores passwordHash for its user.
func (s *Service) ResetPasswordHash(ctx context.Context, resetToken, passwordHash string) (bool, error) {
	var res result
	if err := s.client.Execute(ctx, "resetPasswordHash", resetTokenParams{ResetToken: resetToken, PasswordHash: passwordHash}, &res); err != nil {
		return false, err
	}
	return res.Result, nil
}
