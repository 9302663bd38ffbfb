package client

import (
	"context"
	"fmt"

	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/mlog"
)

type ClientService struct {
	fetcher Fetcher
	cache   ICacheRepository
}

func NewClientService(fetcher Fetcher, cache ICacheRepository) *ClientService {
	return &ClientService{fetcher: fetcher, cache: cache}
}

// GetClientByID serves from the cache and falls back to the authorization
// server. Errors wrap ErrClientNotFound together with the upstream cause.
func (s *ClientService) GetClientByID(ctx context.Context, clientID string) (*hydra.OAuth2Client, error) {
	if c, ok := s.cache.Get(ctx, clientID); ok {
		mlog.L(ctx).Debug(logAction.BUSINESS("client cache hit"), map[string]any{"clientId": clientID})
		return c, nil
	}

	c, err := s.fetcher.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrClientNotFound, clientID, err)
	}
	s.cache.Set(ctx, c)
	return c, nil
}
