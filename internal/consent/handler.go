package consent

import (
	"net/http"

	"github.com/sing3demons/oryfm/pkg/kp"
	"github.com/sing3demons/oryfm/pkg/view"
)

type ConsentHandler struct {
	svc    *ConsentService
	labels view.Labels
}

func NewConsentHandler(svc *ConsentService, labels view.Labels) *ConsentHandler {
	return &ConsentHandler{svc: svc, labels: labels}
}

// GET /consent?consent_challenge=
func (h *ConsentHandler) ConsentForm(ctx *kp.Ctx) {
	ctx.L("consent_form")
	challenge := ctx.Query("consent_challenge")

	step, err := h.svc.Start(ctx.Context(), challenge)
	if err != nil {
		ctx.Error(err)
		return
	}
	if step.RedirectTo != "" {
		ctx.Redirect(step.RedirectTo)
		return
	}

	scope := Labels(step.Request)
	for i, key := range scope {
		scope[i] = h.labels.Get(key)
	}
	ctx.Render(http.StatusOK, view.Consent, view.Data{
		"challenge":          challenge,
		"client":             step.Request.Client,
		"scope":              scope,
		"showRememberChoice": h.svc.ShowRememberChoice(),
	})
}

// POST /consent
func (h *ConsentHandler) Consent(ctx *kp.Ctx) {
	ctx.L("consent")

	var form Form
	if err := ctx.Bind(&form); err != nil {
		ctx.Error(kp.NewError(http.StatusBadRequest, "invalid form", err))
		return
	}

	step, err := h.svc.Submit(ctx.Context(), form)
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.Redirect(step.RedirectTo)
}
