package hydra

import (
	"errors"
	"fmt"
)

type Flow string

const (
	FlowLogin   Flow = "login"
	FlowConsent Flow = "consent"
	FlowLogout  Flow = "logout"
)

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

var (
	// ErrDelegation is wrapped by every *Error: the authorization server answered
	// outside [200,302].
	ErrDelegation = errors.New("delegation_error")
	// ErrTransport covers network failures and undecodable responses.
	ErrTransport = errors.New("transport_error")
)

// Error is a protocol error reported by the admin API.
type Error struct {
	Flow       Flow
	Action     string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("hydra %s %s: status %d: %s", e.Flow, e.Action, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return ErrDelegation
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type OAuth2Client struct {
	ClientID   string         `json:"client_id"`
	ClientName string         `json:"client_name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IsFirstParty reports the "first_party_client" metadata flag.
func (c OAuth2Client) IsFirstParty() bool {
	v, ok := c.Metadata["first_party_client"].(bool)
	return ok && v
}

// DisplayName falls back to the client id when no name was registered.
func (c OAuth2Client) DisplayName() string {
	if c.ClientName != "" {
		return c.ClientName
	}
	return c.ClientID
}

type LoginRequest struct {
	Challenge string       `json:"challenge"`
	Client    OAuth2Client `json:"client"`
	Skip      bool         `json:"skip"`
	Subject   string       `json:"subject"`
}

type AcceptLoginRequest struct {
	Subject     string `json:"subject"`
	Remember    bool   `json:"remember,omitempty"`
	RememberFor int    `json:"remember_for,omitempty"`
}

type ConsentRequest struct {
	Challenge                    string       `json:"challenge"`
	Client                       OAuth2Client `json:"client"`
	Skip                         bool         `json:"skip"`
	Subject                      string       `json:"subject"`
	RequestedScope               []string     `json:"requested_scope"`
	RequestedAccessTokenAudience []string     `json:"requested_access_token_audience"`
}

// HasScope reports whether scope was requested.
func (r ConsentRequest) HasScope(scope string) bool {
	for _, s := range r.RequestedScope {
		if s == scope {
			return true
		}
	}
	return false
}

type ConsentSession struct {
	AccessToken map[string]any `json:"access_token,omitempty"`
	IDToken     map[string]any `json:"id_token,omitempty"`
}

type AcceptConsentRequest struct {
	GrantScope               []string        `json:"grant_scope,omitempty"`
	GrantAccessTokenAudience []string        `json:"grant_access_token_audience,omitempty"`
	Remember                 bool            `json:"remember,omitempty"`
	RememberFor              int             `json:"remember_for,omitempty"`
	Session                  *ConsentSession `json:"session,omitempty"`
}

type LogoutRequest struct {
	Subject     string `json:"subject"`
	SessionID   string `json:"sid"`
	RequestURL  string `json:"request_url"`
	RPInitiated bool   `json:"rp_initiated"`
}

type AcceptLogoutRequest struct{}

type RejectRequest struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type CompletedRequest struct {
	RedirectTo string `json:"redirect_to"`
}
