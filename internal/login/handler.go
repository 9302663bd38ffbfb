package login

import (
	"errors"
	"net/http"

	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/pkg/kp"
	"github.com/sing3demons/oryfm/pkg/view"
)

type LoginHandler struct {
	svc    *LoginService
	labels view.Labels
}

func NewLoginHandler(svc *LoginService, labels view.Labels) *LoginHandler {
	return &LoginHandler{svc: svc, labels: labels}
}

// GET /login?login_challenge=
func (h *LoginHandler) LoginForm(ctx *kp.Ctx) {
	ctx.L("login_form")
	challenge := ctx.Query("login_challenge")

	step, err := h.svc.Start(ctx.Context(), challenge)
	if err != nil {
		ctx.Error(err)
		return
	}
	if step.RedirectTo != "" {
		ctx.Redirect(step.RedirectTo)
		return
	}
	h.render(ctx, http.StatusOK, challenge, step.Request, "", nil)
}

// POST /login
func (h *LoginHandler) Login(ctx *kp.Ctx) {
	ctx.L("login")

	var form Form
	if err := ctx.Bind(&form); err != nil {
		ctx.Error(kp.NewError(http.StatusBadRequest, "invalid form", err))
		return
	}

	step, err := h.svc.Submit(ctx.Context(), form)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.render(ctx, http.StatusUnprocessableEntity, form.Challenge, step.Request, form.Identifier(h.svc.Method()), verr.Messages)
	case errors.Is(err, ErrInvalidCredentials):
		h.render(ctx, http.StatusUnprocessableEntity, form.Challenge, step.Request, form.Identifier(h.svc.Method()), []string{MsgInvalidCredentials})
	case err != nil:
		ctx.Error(err)
	default:
		ctx.Redirect(step.RedirectTo)
	}
}

func (h *LoginHandler) render(ctx *kp.Ctx, status int, challenge string, req *hydra.LoginRequest, identifier string, msgs []string) {
	errs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		errs = append(errs, h.labels.Get(m))
	}

	ctx.Render(status, view.Login, view.Data{
		"challenge":            challenge,
		"client":               req.Client,
		"authenticationMethod": h.svc.Method(),
		"identifier":           identifier,
		"showRememberChoice":   h.svc.ShowRememberChoice(),
		"errors":               errs,
	})
}
