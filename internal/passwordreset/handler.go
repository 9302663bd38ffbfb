package passwordreset

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/pkg/kp"
	"github.com/sing3demons/oryfm/pkg/view"
)

type PasswordResetHandler struct {
	svc    *PasswordResetService
	labels view.Labels
}

func NewPasswordResetHandler(svc *PasswordResetService, labels view.Labels) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc, labels: labels}
}

// Register mounts the reset routes under /password-reset.
func (h *PasswordResetHandler) Register(app kp.IMicroservice) {
	app.GET("/password-reset/request/{clientId}", h.RequestForm)
	app.POST("/password-reset/request/{clientId}", h.Request)
	app.GET("/password-reset/request-success/{clientId}", h.RequestSuccess)
	app.GET("/password-reset/set/{clientId}/{token}", h.SetForm)
	app.POST("/password-reset/set/{clientId}/{token}", h.Set)
	app.GET("/password-reset/set-success/{clientId}", h.SetSuccess)
}

func (h *PasswordResetHandler) RequestForm(ctx *kp.Ctx) {
	ctx.L("password_reset_request_form")
	h.renderRequest(ctx, http.StatusOK, "", nil)
}

func (h *PasswordResetHandler) Request(ctx *kp.Ctx) {
	ctx.L("password_reset_request")
	clientID := ctx.Params("clientId")

	var form RequestForm
	if err := ctx.Bind(&form); err != nil {
		ctx.Error(kp.NewError(http.StatusBadRequest, "invalid form", err))
		return
	}

	uriTemplate := ctx.AbsoluteURL("/password-reset/set/" + url.PathEscape(clientID) + "/" + TokenPlaceholder)
	link, err := h.svc.RequestLink(ctx.Context(), clientID, uriTemplate, form)

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.renderRequest(ctx, http.StatusUnprocessableEntity, form.EmailAddress, verr.Messages)
		return
	case errors.Is(err, ErrUnknownEmail):
		h.renderRequest(ctx, http.StatusUnprocessableEntity, form.EmailAddress, []string{MsgUnknownEmail})
		return
	case err != nil:
		ctx.Error(err)
		return
	}

	location := "/password-reset/request-success/" + url.PathEscape(clientID)
	if h.svc.TestMode() && link != "" {
		location += "?resetLink=" + url.QueryEscape(link)
	}
	ctx.Redirect(location)
}

func (h *PasswordResetHandler) RequestSuccess(ctx *kp.Ctx) {
	ctx.L("password_reset_request_success")

	client, err := h.svc.Client(ctx.Context(), ctx.Params("clientId"))
	if err != nil {
		ctx.Error(err)
		return
	}
	data := view.Data{"client": client}
	if link := ctx.Query("resetLink"); h.svc.TestMode() && link != "" {
		data["resetLink"] = link
	}
	ctx.Render(http.StatusOK, view.PasswordResetRequestDone, data)
}

func (h *PasswordResetHandler) SetForm(ctx *kp.Ctx) {
	ctx.L("password_reset_set_form")
	token := ctx.Params("token")

	client, err := h.svc.OpenSet(ctx.Context(), ctx.Params("clientId"), token)
	if errors.Is(err, ErrInvalidToken) {
		ctx.Render(http.StatusOK, view.PasswordResetInvalidToken, view.Data{"client": client})
		return
	}
	if err != nil {
		ctx.Error(err)
		return
	}
	h.renderSet(ctx, http.StatusOK, client, token, nil)
}

func (h *PasswordResetHandler) Set(ctx *kp.Ctx) {
	ctx.L("password_reset_set")
	token := ctx.Params("token")

	var form SetForm
	if err := ctx.Bind(&form); err != nil {
		ctx.Error(kp.NewError(http.StatusBadRequest, "invalid form", err))
		return
	}

	client, err := h.svc.SetPassword(ctx.Context(), ctx.Params("clientId"), token, form)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.renderSet(ctx, http.StatusUnprocessableEntity, client, token, verr.Messages)
	case errors.Is(err, ErrInvalidToken):
		ctx.Render(http.StatusOK, view.PasswordResetInvalidToken, view.Data{"client": client})
	case err != nil:
		ctx.Error(err)
	default:
		ctx.Redirect("/password-reset/set-success/" + url.PathEscape(ctx.Params("clientId")))
	}
}

func (h *PasswordResetHandler) SetSuccess(ctx *kp.Ctx) {
	ctx.L("password_reset_set_success")

	client, err := h.svc.Client(ctx.Context(), ctx.Params("clientId"))
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.Render(http.StatusOK, view.PasswordResetSetDone, view.Data{"client": client})
}

func (h *PasswordResetHandler) renderRequest(ctx *kp.Ctx, status int, email string, msgs []string) {
	ctx.Render(status, view.PasswordResetRequest, view.Data{
		"clientId":     ctx.Params("clientId"),
		"emailAddress": email,
		"errors":       h.translate(msgs),
	})
}

func (h *PasswordResetHandler) renderSet(ctx *kp.Ctx, status int, client *hydra.OAuth2Client, token string, msgs []string) {
	ctx.Render(status, view.PasswordResetSet, view.Data{
		"client": client,
		"token":  token,
		"errors": h.translate(msgs),
	})
}

func (h *PasswordResetHandler) translate(msgs []string) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, h.labels.Get(m))
	}
	return out
}
