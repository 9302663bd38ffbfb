// Package client looks up OAuth2 client metadata on the authorization server
// and keeps it for a short time. Challenge state is never cached; client
// registrations change rarely and the password-reset pages ask for the same
// client on every step.
package client

import (
	"context"
	"time"

	"github.com/sing3demons/oryfm/internal/hydra"
)

// CacheTTL bounds how stale a client name or first-party flag can be.
const CacheTTL = 30 * time.Second

// Fetcher loads a client from the authorization server.
type Fetcher interface {
	GetClient(ctx context.Context, clientID string) (*hydra.OAuth2Client, error)
}

func cacheKey(clientID string) string {
	return "oryfm:client:" + clientID
}
