// Package logout accepts logout challenges. There is nothing to decide: the
// challenge is accepted as is and the user sent back.
package logout

import (
	"context"

	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/internal/metrics"
	"github.com/sing3demons/oryfm/pkg/kp"
)

type HydraClient interface {
	AcceptLogoutRequest(ctx context.Context, challenge string) (*hydra.CompletedRequest, error)
}

type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}

type LogoutService struct {
	hydra HydraClient
	audit Recorder
}

func NewLogoutService(hydraClient HydraClient, recorder Recorder) *LogoutService {
	return &LogoutService{hydra: hydraClient, audit: recorder}
}

// Accept returns the URL the user is redirected to.
func (s *LogoutService) Accept(ctx context.Context, challenge string) (string, error) {
	completed, err := s.hydra.AcceptLogoutRequest(ctx, challenge)
	if err != nil {
		metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowLogout), "error").Inc()
		return "", err
	}

	metrics.FlowOutcomes.WithLabelValues(string(hydra.FlowLogout), "accepted").Inc()
	if s.audit != nil {
		e := audit.NewEvent(audit.LogoutAccepted)
		e.Challenge = challenge
		s.audit.Record(ctx, e)
	}
	return completed.RedirectTo, nil
}

type LogoutHandler struct {
	svc *LogoutService
}

func NewLogoutHandler(svc *LogoutService) *LogoutHandler {
	return &LogoutHandler{svc: svc}
}

// GET /logout?logout_challenge=
func (h *LogoutHandler) Logout(ctx *kp.Ctx) {
	ctx.L("logout")

	redirectTo, err := h.svc.Accept(ctx.Context(), ctx.Query("logout_challenge"))
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.Redirect(redirectTo)
}
