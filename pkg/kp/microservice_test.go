package kp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/pkg/csrf"
)

func TestMicroservice_Routes(t *testing.T) {
	app := NewMicroservice(&config.AppConfig{ServiceName: "test"})
	app.GET("/hello/{name}", func(ctx *Ctx) {
		ctx.JSON(http.StatusOK, map[string]string{"hello": ctx.Params("name")})
	})

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello/world", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"hello":"world"`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hello/world", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestMicroservice_MiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	app := NewMicroservice(&config.AppConfig{})
	app.Use(mw("global-1"))
	app.Use(mw("global-2"))
	app.GET("/x", func(ctx *Ctx) { ctx.JSON(http.StatusOK, nil) }, mw("route"))

	app.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	want := []string{"global-1", "global-2", "route"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestMicroservice_POSTRequiresCSRF(t *testing.T) {
	fr := &fakeRenderer{}
	app := NewMicroservice(&config.AppConfig{}, WithRenderer(fr), WithCSRF(csrf.New("secret", time.Hour, false)))
	called := false
	app.POST("/login", func(ctx *Ctx) {
		called = true
		ctx.JSON(http.StatusOK, nil)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("challenge=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if called {
		t.Error("handler must not run without a CSRF token")
	}
	if fr.page != "error" {
		t.Errorf("page = %q, want error", fr.page)
	}
}
