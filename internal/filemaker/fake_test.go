package filemaker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sing3demons/oryfm/internal/config"
	"github.com/stretchr/testify/require"
)

// fakeDataAPI imitates the session and script endpoints of the Data API.
type fakeDataAPI struct {
	t *testing.T

	mu          sync.Mutex
	accounts    map[string]string
	scripts     map[string]func(params map[string]any) any
	scriptCalls []string
	tokensSeen  []string
	revoked     []string
	scriptFail  int

	acquisitions atomic.Int32
}

func newFakeDataAPI(t *testing.T) (*fakeDataAPI, *httptest.Server) {
	f := &fakeDataAPI{
		t:        t,
		accounts: map[string]string{"svc": "svc-pass"},
		scripts:  map[string]func(map[string]any) any{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeDataAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix = "/fmi/data/v1/databases/users/"
	path := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case r.Method == http.MethodPost && path == "sessions":
		user, pass, ok := r.BasicAuth()
		f.mu.Lock()
		want, known := f.accounts[user]
		f.mu.Unlock()
		if !ok || !known || want != pass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := f.acquisitions.Add(1)
		w.Header().Set(tokenHeader, fmt.Sprintf("token-%s-%d", user, n))
		w.Write([]byte(`{}`))

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "sessions/"):
		f.mu.Lock()
		f.revoked = append(f.revoked, strings.TrimPrefix(path, "sessions/"))
		f.mu.Unlock()
		w.Write([]byte(`{}`))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "layouts/web/script/"):
		script := strings.TrimPrefix(path, "layouts/web/script/")
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		var params map[string]any
		require.NoError(f.t, json.Unmarshal([]byte(r.URL.Query().Get("script.param")), &params))

		f.mu.Lock()
		f.scriptCalls = append(f.scriptCalls, script)
		f.tokensSeen = append(f.tokensSeen, token)
		fail := f.scriptFail
		handler := f.scripts[script]
		f.mu.Unlock()

		if fail != 0 {
			w.WriteHeader(fail)
			return
		}
		var res any = map[string]any{"result": true}
		if handler != nil {
			res = handler(params)
		}
		inner, _ := json.Marshal(res)
		json.NewEncoder(w).Encode(map[string]any{"response": map[string]any{"scriptResult": string(inner)}})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestClient(t *testing.T, srv *httptest.Server, clock *fakeClock, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	c, err := NewClient(config.FileMakerConfig{
		URL:      srv.URL,
		Username: "svc",
		Password: "svc-pass",
		Database: "users",
		Layout:   "web",
	}, opts...)
	require.NoError(t, err)
	return c
}

func (f *fakeDataAPI) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *fakeDataAPI) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokensSeen...)
}

func (f *fakeDataAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scriptCalls...)
}
