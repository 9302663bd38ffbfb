package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/credential"
	"github.com/sing3demons/oryfm/internal/filemaker"
	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/internal/metrics"
	"github.com/sing3demons/oryfm/internal/remember"
	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/mlog"
)

type LoginService struct {
	hydra       HydraClient
	users       UserStore
	credentials Credentials
	dummyHash   string
	remember    remember.Policy
	method      string
	validate    *validator.Validate
	audit       Recorder
}

func NewLoginService(hydraClient HydraClient, users UserStore, credentials Credentials, policy remember.Policy, method string, recorder Recorder) *LoginService {
	if method == "" {
		method = MethodEmail
	}
	// verified against when the identifier is unknown, at the configured strength
	dummyHash, _ := credentials.Hash(uuid.NewString())
	return &LoginService{
		hydra:       hydraClient,
		users:       users,
		credentials: credentials,
		dummyHash:   dummyHash,
		remember:    policy,
		method:      method,
		validate:    validator.New(),
		audit:       recorder,
	}
}

func (s *LoginService) Method() string {
	return s.method
}

func (s *LoginService) ShowRememberChoice() bool {
	return s.remember.ShowChoice()
}

// Start fetches the challenge. A skipped challenge is accepted for the
// subject the authorization server already knows, without touching the
// identity store.
func (s *LoginService) Start(ctx context.Context, challenge string) (Step, error) {
	req, err := s.hydra.GetLoginRequest(ctx, challenge)
	if err != nil {
		return Step{}, s.fail(err)
	}
	if !req.Skip {
		return Step{Request: req}, nil
	}

	completed, err := s.hydra.AcceptLoginRequest(ctx, challenge, hydra.AcceptLoginRequest{Subject: req.Subject})
	if err != nil {
		return Step{}, s.fail(err)
	}

	metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowLogin), "skipped").Inc()
	s.record(ctx, audit.LoginSkipped, challenge, req, req.Subject, nil)
	return Step{RedirectTo: completed.RedirectTo}, nil
}

// Submit re-fetches the challenge and checks the form. The returned Step
// always carries the request so a failed submission can re-render the form;
// the error is then a *ValidationError or ErrInvalidCredentials.
func (s *LoginService) Submit(ctx context.Context, form Form) (Step, error) {
	req, err := s.hydra.GetLoginRequest(ctx, form.Challenge)
	if err != nil {
		return Step{}, s.fail(err)
	}

	if msgs := s.check(form); len(msgs) > 0 {
		metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowLogin), "invalid_form").Inc()
		return Step{Request: req}, &ValidationError{Messages: msgs}
	}

	user, err := s.authenticate(ctx, form)
	if errors.Is(err, ErrInvalidCredentials) {
		metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowLogin), "invalid_credentials").Inc()
		s.record(ctx, audit.LoginFailed, form.Challenge, req, "", nil)
		return Step{Request: req}, err
	}
	if err != nil {
		return Step{}, s.fail(err)
	}

	if err := s.migrate(ctx, user, form.Password); err != nil {
		return Step{}, s.fail(err)
	}

	decision := s.remember.Decide(form.Remember)
	completed, err := s.hydra.AcceptLoginRequest(ctx, form.Challenge, hydra.AcceptLoginRequest{
		Subject:     user.ID,
		Remember:    decision.Remember,
		RememberFor: decision.RememberFor,
	})
	if err != nil {
		return Step{}, s.fail(err)
	}

	metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowLogin), "accepted").Inc()
	s.record(ctx, audit.LoginAccepted, form.Challenge, req, user.ID, map[string]any{
		"remember":    decision.Remember,
		"rememberFor": decision.RememberFor,
	})
	return Step{RedirectTo: completed.RedirectTo}, nil
}

func (s *LoginService) check(form Form) []string {
	var msgs []string
	if s.method == MethodBasicAuth {
		if err := s.validate.Var(form.Username, "required"); err != nil {
			msgs = append(msgs, MsgUsernameRequired)
		}
	} else if err := s.validate.Var(form.EmailAddress, "required,email"); err != nil {
		msgs = append(msgs, MsgEmailRequired)
	}
	if err := s.validate.Var(form.Password, "required"); err != nil {
		msgs = append(msgs, MsgPasswordRequired)
	}
	return msgs
}

func (s *LoginService) authenticate(ctx context.Context, form Form) (*filemaker.User, error) {
	if s.method == MethodBasicAuth {
		user, err := s.users.AuthenticateUser(ctx, form.Username, form.Password)
		if errors.Is(err, filemaker.ErrAuthentication) || errors.Is(err, filemaker.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return user, err
	}

	user, err := s.users.GetUser(ctx, filemaker.FieldEmailAddress, form.EmailAddress)
	if errors.Is(err, filemaker.ErrUserNotFound) {
		s.credentials.Verify(form.Password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.credentials.Verify(form.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// migrate replaces a legacy or under-strength hash. The identity store owns
// the password in basic-auth mode, so nothing is migrated there.
func (s *LoginService) migrate(ctx context.Context, user *filemaker.User, password string) error {
	if s.method == MethodBasicAuth || !s.credentials.NeedsRehash(user.PasswordHash) {
		return nil
	}

	hash, err := s.credentials.Hash(password)
	if err != nil {
		return fmt.Errorf("rehash password: %w", err)
	}
	ok, err := s.users.SetPasswordHash(ctx, user.ID, hash)
	if err != nil {
		return fmt.Errorf("store rehashed password: %w", err)
	}

	data := map[string]any{
		"userId": user.ID,
		"from":   credential.Detect(user.PasswordHash).String(),
		"stored": ok,
	}
	if !ok {
		mlog.L(ctx).Warn(logAction.BUSINESS("password hash migration not stored"), data)
		return nil
	}
	mlog.L(ctx).Info(logAction.BUSINESS("password hash migrated"), data)
	return nil
}

func (s *LoginService) fail(err error) error {
	metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowLogin), "error").Inc()
	return err
}

func (s *LoginService) record(ctx context.Context, t audit.EventType, challenge string, req *hydra.LoginRequest, subject string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	e := audit.NewEvent(t)
	e.Challenge = challenge
	e.Subject = subject
	e.ClientID = req.Client.ClientID
	e.Detail = detail
	s.audit.Record(ctx, e)
}
