package consent

import (
	"context"
	"fmt"

	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/filemaker"
	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/internal/metrics"
	"github.com/sing3demons/oryfm/internal/remember"
)

type ConsentService struct {
	hydra    HydraClient
	users    UserStore
	remember remember.Policy
	audit    Recorder
}

func NewConsentService(hydraClient HydraClient, users UserStore, policy remember.Policy, recorder Recorder) *ConsentService {
	return &ConsentService{hydra: hydraClient, users: users, remember: policy, audit: recorder}
}

func (s *ConsentService) ShowRememberChoice() bool {
	return s.remember.ShowChoice()
}

// Start auto-accepts skipped challenges and first-party clients. Automatic
// accepts never count as a user opt-in for remembering.
func (s *ConsentService) Start(ctx context.Context, challenge string) (Step, error) {
	req, err := s.hydra.GetConsentRequest(ctx, challenge)
	if err != nil {
		return Step{}, s.fail(err)
	}
	if !req.Skip && !req.Client.IsFirstParty() {
		return Step{Request: req}, nil
	}

	reason := "first_party"
	if req.Skip {
		reason = "skipped"
	}
	return s.accept(ctx, challenge, req, false, reason)
}

// Submit re-fetches the challenge and applies the user's decision.
func (s *ConsentService) Submit(ctx context.Context, form Form) (Step, error) {
	req, err := s.hydra.GetConsentRequest(ctx, form.Challenge)
	if err != nil {
		return Step{}, s.fail(err)
	}

	if !form.Allow {
		completed, err := s.hydra.RejectConsentRequest(ctx, form.Challenge, hydra.RejectRequest{
			Error:            deniedError,
			ErrorDescription: deniedDescription,
		})
		if err != nil {
			return Step{}, s.fail(err)
		}
		metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowConsent), "rejected").Inc()
		s.record(ctx, audit.ConsentRejected, form.Challenge, req, nil)
		return Step{RedirectTo: completed.RedirectTo}, nil
	}

	return s.accept(ctx, form.Challenge, req, form.Remember, "user")
}

func (s *ConsentService) accept(ctx context.Context, challenge string, req *hydra.ConsentRequest, optIn bool, reason string) (Step, error) {
	body, err := s.grant(ctx, req, optIn)
	if err != nil {
		return Step{}, s.fail(err)
	}

	completed, err := s.hydra.AcceptConsentRequest(ctx, challenge, body)
	if err != nil {
		return Step{}, s.fail(err)
	}

	metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowConsent), "accepted").Inc()
	s.record(ctx, audit.ConsentAccepted, challenge, req, map[string]any{
		"reason":      reason,
		"grantScope":  body.GrantScope,
		"remember":    body.Remember,
		"rememberFor": body.RememberFor,
	})
	return Step{RedirectTo: completed.RedirectTo}, nil
}

// grant covers exactly the requested scope and audience. ID token claims are
// only looked up when a claim-bearing scope was requested; without claims the
// session is left out.
func (s *ConsentService) grant(ctx context.Context, req *hydra.ConsentRequest, optIn bool) (hydra.AcceptConsentRequest, error) {
	decision := s.remember.Decide(optIn)
	body := hydra.AcceptConsentRequest{
		GrantScope:               req.RequestedScope,
		GrantAccessTokenAudience: req.RequestedAccessTokenAudience,
		Remember:                 decision.Remember,
		RememberFor:              decision.RememberFor,
	}

	wantName, wantEmail := req.HasScope(ScopeProfile), req.HasScope(ScopeEmail)
	if !wantName && !wantEmail {
		return body, nil
	}

	user, err := s.users.GetUser(ctx, filemaker.FieldID, req.Subject)
	if err != nil {
		return body, fmt.Errorf("load claims for %s: %w", req.Subject, err)
	}

	claims := map[string]any{}
	if wantName {
		claims["name"] = user.DisplayName
	}
	if wantEmail {
		claims["email"] = user.EmailAddress
	}
	body.Session = &hydra.ConsentSession{IDToken: claims}
	return body, nil
}

// Labels returns the label keys of the requested scopes a user should see, in
// request order.
func Labels(req *hydra.ConsentRequest) []string {
	var out []string
	for _, scope := range req.RequestedScope {
		if label, ok := KnownScopes[scope]; ok {
			out = append(out, label)
		}
	}
	return out
}

func (s *ConsentService) fail(err error) error {
	metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowConsent), "error").Inc()
	return err
}

func (s *ConsentService) record(ctx context.Context, t audit.EventType, challenge string, req *hydra.ConsentRequest, detail map[string]any) {
	if s.audit == nil {
		return
	}
	e := audit.NewEvent(t)
	e.Challenge = challenge
	e.Subject = req.Subject
	e.ClientID = req.Client.ClientID
	e.Detail = detail
	s.audit.Record(ctx, e)
}
