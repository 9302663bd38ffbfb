package kp

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/pkg/csrf"
	"github.com/sing3demons/oryfm/pkg/logger"
	"github.com/sing3demons/oryfm/pkg/view"
)

type fakeRenderer struct {
	page string
	data view.Data
}

func (f *fakeRenderer) Render(w io.Writer, name string, data view.Data) error {
	f.page, f.data = name, data
	_, err := fmt.Fprintf(w, "page=%s", name)
	return err
}

func newTestCtx(req *http.Request, v Renderer, cm *csrf.Manager) (*Ctx, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	cfg := &config.AppConfig{ServiceName: "test", Version: "1.0"}
	return newMuxContext(rec, req, cfg, v, cm), rec
}

func TestCtx_Body_JSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "Valid JSON",
			body: `{"name":"test","age":25}`,
			want: map[string]any{"name": "test", "age": float64(25)},
		},
		{
			name:    "Invalid JSON",
			body:    `{invalid}`,
			wantErr: true,
		},
		{
			name:    "Empty body",
			body:    ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			ctx, _ := newTestCtx(req, nil, nil)

			var result map[string]any
			err := ctx.Bind(&result)

			if (err != nil) != tt.wantErr {
				t.Errorf("Bind() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && result["name"] != tt.want["name"] {
				t.Errorf("got %v, want %v", result, tt.want)
			}
		})
	}
}

func TestCtx_Body_Form(t *testing.T) {
	formData := url.Values{}
	formData.Set("emailAddress", "john@example.com")
	formData.Set("password", "secret")

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	ctx, _ := newTestCtx(req, nil, nil)

	var result map[string]string
	if err := ctx.Bind(&result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["emailAddress"] != "john@example.com" || result["password"] != "secret" {
		t.Errorf("got %v", result)
	}
}

func TestCtx_Body_FormStruct(t *testing.T) {
	type form struct {
		Challenge string `form:"challenge"`
		Remember  bool   `form:"remember"`
		Allow     bool   `form:"allow"`
		Attempts  int    `form:"attempts"`
		Ignored   string
	}

	tests := []struct {
		name string
		body string
		want form
	}{
		{"checkbox on", "challenge=abc&remember=on&allow=true&attempts=2", form{Challenge: "abc", Remember: true, Allow: true, Attempts: 2}},
		{"checkbox absent", "challenge=abc&allow=false", form{Challenge: "abc"}},
		{"zero means false", "remember=0", form{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			ctx, _ := newTestCtx(req, nil, nil)

			var got form
			if err := ctx.Bind(&got); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCtx_Body_FormRereadable(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("a=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	ctx, _ := newTestCtx(req, nil, nil)

	var first, second map[string]string
	if err := ctx.Bind(&first); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Bind(&second); err != nil {
		t.Fatal(err)
	}
	if second["a"] != "1" {
		t.Errorf("second bind got %v", second)
	}
}

func TestCtx_Body_PlainText(t *testing.T) {
	textBody := "Hello, World!"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(textBody))
	req.Header.Set("Content-Type", "text/plain")
	ctx, _ := newTestCtx(req, nil, nil)

	var result string
	if err := ctx.Bind(&result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != textBody {
		t.Errorf("got %q, want %q", result, textBody)
	}
}

func TestCtx_Body_UnsupportedType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("<a/>"))
	req.Header.Set("Content-Type", "application/xml")
	ctx, _ := newTestCtx(req, nil, nil)

	var result map[string]string
	if err := ctx.Bind(&result); err == nil {
		t.Error("expected error for unsupported content type")
	}
}

func TestCtx_SessionID_Idempotent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := &Ctx{
		Res: httptest.NewRecorder(),
		Req: req,
		Cfg: &config.AppConfig{},
		Log: logger.NewLoggerWithConfig("test", "1.0", &logger.LoggerConfig{}),
	}

	sid1 := ctx.SessionID()
	sid2 := ctx.SessionID()
	if sid1 != sid2 {
		t.Errorf("SessionID() not idempotent: %q != %q", sid1, sid2)
	}
}

func TestCtx_TransactionID_FromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("x-transaction-id", "tid-1")
	ctx, _ := newTestCtx(req, nil, nil)

	if got := ctx.TransactionID(); got != "tid-1" {
		t.Errorf("TransactionID() = %q, want tid-1", got)
	}
	if got := ctx.Log.TransactionID(); got != "tid-1" {
		t.Errorf("logger transaction id = %q, want tid-1", got)
	}
}

func TestCtx_Render_AddsCSRFToken(t *testing.T) {
	fr := &fakeRenderer{}
	req := httptest.NewRequest(http.MethodGet, "/login?login_challenge=abc", nil)
	ctx, rec := newTestCtx(req, fr, csrf.New("secret", time.Hour, false))

	ctx.Render(http.StatusOK, view.Login, view.Data{"challenge": "abc"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fr.page != view.Login {
		t.Errorf("page = %q", fr.page)
	}
	if tok, _ := fr.data["csrfToken"].(string); tok == "" {
		t.Error("expected csrfToken in page data")
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("expected nonce cookie")
	}
}

func TestCtx_Error_Status(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"kp error", NewError(http.StatusUnprocessableEntity, "bad", nil), http.StatusUnprocessableEntity},
		{"csrf", fmt.Errorf("wrap: %w", csrf.ErrInvalidToken), http.StatusForbidden},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRenderer{}
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			ctx, rec := newTestCtx(req, fr, nil)

			ctx.Error(tt.err)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if fr.page != view.Error {
				t.Errorf("page = %q, want %q", fr.page, view.Error)
			}
			if _, ok := fr.data["detail"]; ok {
				t.Error("detail must not be shown outside development")
			}
		})
	}
}

func TestCtx_Redirect(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx, rec := newTestCtx(req, nil, nil)

	ctx.Redirect("https://hydra.example/callback?x=1")

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://hydra.example/callback?x=1" {
		t.Errorf("Location = %q", got)
	}
}

func TestCtx_AbsoluteURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://login.example/password-reset/request/app", nil)
	ctx, _ := newTestCtx(req, nil, nil)
	if got := ctx.AbsoluteURL("/password-reset/set/app/{resetToken}"); got != "http://login.example/password-reset/set/app/{resetToken}" {
		t.Errorf("AbsoluteURL() = %q", got)
	}

	req.Header.Set("X-Forwarded-Proto", "https, http")
	if got := ctx.AbsoluteURL("/x"); got != "https://login.example/x" {
		t.Errorf("AbsoluteURL() behind proxy = %q", got)
	}
}
