// Package consent drives the consent challenge.
package consent

import (
	"context"

	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/filemaker"
	"github.com/sing3demons/oryfm/internal/hydra"
)

const (
	ScopeEmail   = "email"
	ScopeProfile = "profile"
)

// KnownScopes maps the scopes a user is shown to their label keys. Other
// requested scopes are granted with the rest but never listed.
var KnownScopes = map[string]string{
	ScopeEmail:   "See your email address",
	ScopeProfile: "See your name",
}

const (
	deniedError       = "access_denied"
	deniedDescription = "The resource owner denied the request"
)

type Form struct {
	Challenge string `form:"challenge"`
	Allow     bool   `form:"allow"`
	Remember  bool   `form:"remember"`
}

type Step struct {
	RedirectTo string
	Request    *hydra.ConsentRequest
}

type HydraClient interface {
	GetConsentRequest(ctx context.Context, challenge string) (*hydra.ConsentRequest, error)
	AcceptConsentRequest(ctx context.Context, challenge string, body hydra.AcceptConsentRequest) (*hydra.CompletedRequest, error)
	RejectConsentRequest(ctx context.Context, challenge string, body hydra.RejectRequest) (*hydra.CompletedRequest, error)
}

type UserStore interface {
	GetUser(ctx context.Context, field filemaker.UserField, value string) (*filemaker.User, error)
}

type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}
