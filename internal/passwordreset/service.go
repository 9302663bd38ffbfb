package passwordreset

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const flow = "password_reset"

type PasswordResetService struct {
	users    UserStore
	clients  ClientLookup
	hasher   Hasher
	audit    Recorder
	validate *validator.Validate
	testMode bool
}

// NewPasswordResetService builds the service. In test mode the identity store
// hands the reset link back so it can be shown instead of mailed.
func NewPasswordResetService(users UserStore, clients ClientLookup, hasher Hasher, recorder Recorder, testMode bool) *PasswordResetService {
	return &PasswordResetService{
		users:    users,
		clients:  clients,
		hasher:   hasher,
		audit:    recorder,
		validate: validator.New(),
		testMode: testMode,
	}
}

func (s *PasswordResetService) TestMode() bool {
	return s.testMode
}

func (s *PasswordResetService) Client(ctx context.Context, clientID string) (*hydra.OAuth2Client, error) {
	return s.clients.GetClientByID(ctx, clientID)
}

// RequestLink asks the identity store to send a link built from
// uriTemplate. The returned link is empty outside test mode.
func (s *PasswordResetService) RequestLink(ctx context.Context, clientID, uriTemplate string, form RequestForm) (string, error) {
	if err := s.validate.Struct(form); err != nil {
		return "", &ValidationError{Messages: []string{MsgEmailRequired}}
	}

	link, err := s.users.RequestPasswordResetLink(ctx, form.EmailAddress, uriTemplate, s.testMode)
	if err != nil {
		metrics.FlowOutcomes.WithLabelValues(flow, "error").Inc()
		return "", err
	}
	if !link.Sent {
		metrics.FlowOutcomes.WithLabelValues(flow, "unknown_email").Inc()
		return "", ErrUnknownEmail
	}

	metrics.FlowOutcomes.WithLabelValues(flow, "requested").Inc()
	s.record(ctx, audit.PasswordResetRequested, clientID)
	return link.Link, nil
}

// OpenSet loads the client and checks the token at the same time. The client
// is returned with ErrInvalidToken so the invalid-token page can link back.
func (s *PasswordResetService) OpenSet(ctx context.Context, clientID, token string) (*hydra.OAuth2Client, error) {
	var (
		client *hydra.OAuth2Client
		valid  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.clients.GetClientByID(gctx, clientID)
		client = c
		return err
	})
	g.Go(func() error {
		ok, err := s.users.ValidatePasswordResetToken(gctx, token)
		valid = ok
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !valid {
		return client, ErrInvalidToken
	}
	return client, nil
}

// SetPassword validates the form, hashes the password with the current
// scheme and consumes the token.
func (s *PasswordResetService) SetPassword(ctx context.Context, clientID, token string, form SetForm) (*hydra.OAuth2Client, error) {
	client, err := s.clients.GetClientByID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if err := s.validate.Struct(form); err != nil {
		return client, &ValidationError{Messages: messages(err)}
	}

	hash, err := s.hasher.Hash(form.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	ok, err := s.users.ResetPasswordHash(ctx, token, hash)
	if err != nil {
		metrics.FlowOutcomes.WithLabelValues(flow, "error").Inc()
		return nil, err
	}
	if !ok {
		metrics.FlowOutcomes.WithLabelValues(flow, "invalid_token").Inc()
		return client, ErrInvalidToken
	}

	metrics.FlowOutcomes.WithLabelValues(flow, "completed").Inc()
	s.record(ctx, audit.PasswordResetCompleted, clientID)
	return client, nil
}

func messages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	var out []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "min":
			out = append(out, MsgPasswordTooShort)
		case "eqfield":
			out = append(out, MsgPasswordMismatch)
		}
	}
	return out
}

func (s *PasswordResetService) record(ctx context.Context, t audit.EventType, clientID string) {
	if s.audit == nil {
		return
	}
	e := audit.NewEvent(t)
	e.ClientID = clientID
	s.audit.Record(ctx, e)
}
