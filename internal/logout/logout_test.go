package logout

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/pkg/kp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ events []audit.Event }

func (r *recorder) Record(_ context.Context, e audit.Event) { r.events = append(r.events, e) }

func TestLogout_AcceptsWithEmptyBody(t *testing.T) {
	var gotMethod, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotQuery = r.Method, r.URL.RawQuery
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"redirect_to":"https://app.example/logged-out"}`)
	}))
	defer srv.Close()

	hc, err := hydra.NewClient(config.HydraConfig{AdminURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	rec := &recorder{}

	app := kp.NewMicroservice(&config.AppConfig{})
	app.GET("/logout", NewLogoutHandler(NewLogoutService(hc, rec)).Logout)

	res := httptest.NewRecorder()
	app.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/logout?logout_challenge=lc1", nil))

	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "https://app.example/logged-out", res.Header().Get("Location"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "logout_challenge=lc1", gotQuery)
	assert.JSONEq(t, `{}`, gotBody)
	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.LogoutAccepted, rec.events[0].Type)
}

func TestLogout_DelegationErrorRendersFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"unknown challenge"}}`)
	}))
	defer srv.Close()

	hc, err := hydra.NewClient(config.HydraConfig{AdminURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	app := kp.NewMicroservice(&config.AppConfig{})
	app.GET("/logout", NewLogoutHandler(NewLogoutService(hc, nil)).Logout)

	res := httptest.NewRecorder()
	app.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/logout?logout_challenge=bad", nil))

	assert.Equal(t, http.StatusInternalServerError, res.Code)
}
