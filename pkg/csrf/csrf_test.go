package csrf

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issue(t *testing.T, m *Manager) (string, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	token, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return token, cookies[0]
}

func TestIssueReusesNonceCookie(t *testing.T) {
	m := New("secret", time.Hour, false)
	_, cookie := issue(t, m)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/consent", nil)
	req.AddCookie(cookie)
	token, err := m.Issue(rec, req)
	require.NoError(t, err)
	assert.Empty(t, rec.Result().Cookies(), "existing cookie is kept")
	assert.NoError(t, m.Verify(req, token))
}

func TestVerify(t *testing.T) {
	m := New("secret", time.Hour, false)
	token, cookie := issue(t, m)

	withCookie := func(c *http.Cookie) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		if c != nil {
			req.AddCookie(c)
		}
		return req
	}

	assert.NoError(t, m.Verify(withCookie(cookie), token))
	assert.ErrorIs(t, m.Verify(withCookie(nil), token), ErrInvalidToken)
	assert.ErrorIs(t, m.Verify(withCookie(cookie), ""), ErrInvalidToken)
	assert.ErrorIs(t, m.Verify(withCookie(&http.Cookie{Name: cookieName, Value: "other"}), token), ErrInvalidToken)
	assert.ErrorIs(t, New("other-secret", time.Hour, false).Verify(withCookie(cookie), token), ErrInvalidToken)
}

func TestVerifyRejectsExpiredAndUnsigned(t *testing.T) {
	m := New("secret", time.Hour, false)
	_, cookie := issue(t, m)
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(cookie)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Nonce:            cookie.Value,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	assert.ErrorIs(t, m.Verify(req, expired), ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		Nonce:            cookie.Value,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Verify(req, unsigned), ErrInvalidToken)
}

func TestProtect(t *testing.T) {
	m := New("secret", time.Hour, false)
	token, cookie := issue(t, m)

	var gotErr error
	var gotBody string
	h := m.Protect(func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusForbidden)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotBody = r.PostForm.Get("emailAddress")
		w.WriteHeader(http.StatusNoContent)
	}))

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post(url.Values{FieldName: {token}, "emailAddress": {"a@b.c"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "a@b.c", gotBody, "body is readable downstream")

	rec = post(url.Values{"emailAddress": {"a@b.c"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, errors.Is(gotErr, ErrInvalidToken))

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusNoContent, get.Code)
}
