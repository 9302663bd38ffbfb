// Package filemaker calls scripts on a FileMaker Data API database that acts
// as the identity store, and manages the Data API session token.
package filemaker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/internal/metrics"
	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/logger"
	"github.com/sing3demons/oryfm/pkg/mlog"
	"golang.org/x/sync/singleflight"
)

// TokenTimeout is kept a minute inside the server's 15 minute idle expiry.
const TokenTimeout = 14 * time.Minute

const (
	dependencyName = "filemaker"
	tokenHeader    = "X-FM-Data-Access-Token"
	maxBodySize    = 1 << 20
	defaultTimeout = 30 * time.Second
)

var (
	// ErrAuthentication means the Data API refused the credential pair.
	ErrAuthentication = errors.New("filemaker_authentication_error")
	ErrTransport      = errors.New("filemaker_transport_error")
	// ErrScript is a non-success status from a script call.
	ErrScript = errors.New("filemaker_script_error")
)

var fileMakerMasking = []logger.MaskingRule{
	{Field: "params.passwordHash", Type: logger.MaskingTypeFull},
	{Field: "params.resetToken", Type: logger.MaskingTypePartial},
	{Field: "params.emailAddress", Type: logger.MaskingTypeEmail},
	{Field: "result.user.passwordHash", Type: logger.MaskingTypeFull},
	{Field: "result.debug.resetLink", Type: logger.MaskingTypePartial},
	{Field: "token", Type: logger.MaskingTypePartial},
}

// Client executes scripts with a cached session token. The token is reused
// while it has been used within TokenTimeout and replaced otherwise.
//
// Concurrent callers that all see an expired token each acquire a new one
// unless the client was built WithSerializedRefresh; the Data API accepts
// several live sessions, so the race only costs an extra login.
type Client struct {
	baseURL    string
	database   string
	layout     string
	username   string
	password   string
	httpClient *http.Client
	store      TokenStore
	now        func() time.Time
	refresh    *singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSerializedRefresh collapses concurrent token acquisitions into one.
func WithSerializedRefresh() Option {
	return func(c *Client) { c.refresh = &singleflight.Group{} }
}

func NewClient(cfg config.FileMakerConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" || cfg.Database == "" || cfg.Layout == "" {
		return nil, fmt.Errorf("%w: filemaker url, database and layout are required", config.ErrInvalidConfig)
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		database:   cfg.Database,
		layout:     cfg.Layout,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
	if cfg.SerializeRefresh {
		c.refresh = &singleflight.Group{}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryTokenStore()
	}
	return c, nil
}

// WithCredentials returns a client bound to another credential pair. Its
// session lives only in memory; callers clear it once they are done.
func (c *Client) WithCredentials(username, password string) *Client {
	return &Client{
		baseURL:    c.baseURL,
		database:   c.database,
		layout:     c.layout,
		username:   username,
		password:   password,
		httpClient: c.httpClient,
		store:      NewMemoryTokenStore(),
		now:        c.now,
	}
}

func (c *Client) databaseURL(segments ...string) string {
	parts := []string{c.baseURL, "fmi/data/v1/databases", url.PathEscape(c.database)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

type scriptEnvelope struct {
	Response struct {
		ScriptResult string `json:"scriptResult"`
	} `json:"response"`
}

// Execute runs script with params and decodes its JSON result into out.
func (c *Client) Execute(ctx context.Context, script string, params any, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		metrics.FileMakerRequests.WithLabelValues(script, "error").Inc()
		return err
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", script, err)
	}
	endpoint := c.databaseURL("layouts", c.layout, "script", script) + "?script.param=" + url.QueryEscape(string(encoded))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: dependencyName,
	}).Debug(logAction.HTTP_REQUEST(dependencyName, "script "+script), map[string]any{
		"script": script,
		"params": params,
	}, fileMakerMasking...)

	status, raw, err := c.send(req)
	elapsedMs := time.Since(start).Milliseconds()
	if err != nil {
		metrics.FileMakerRequests.WithLabelValues(script, "error").Inc()
		log.SetDependencyMetadata(logger.DependencyMetadata{Dependency: dependencyName, ResponseTime: elapsedMs}).
			Error(logAction.HTTP_RESPONSE(dependencyName, "script "+script), map[string]any{"error": err.Error()})
		return err
	}
	if status < 200 || status > 299 {
		metrics.FileMakerRequests.WithLabelValues(script, "error").Inc()
		log.SetDependencyMetadata(logger.DependencyMetadata{Dependency: dependencyName, ResponseTime: elapsedMs}).
			Error(logAction.HTTP_RESPONSE(dependencyName, "script "+script), map[string]any{"status": status})
		return fmt.Errorf("%w: %s: status %d", ErrScript, script, status)
	}

	var env scriptEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.FileMakerRequests.WithLabelValues(script, "error").Inc()
		return fmt.Errorf("%w: decode %s envelope: %v", ErrTransport, script, err)
	}

	// the call succeeded, so the session stays alive for another window
	if err := c.store.Save(ctx, Session{Token: token, LastUse: c.now()}); err != nil {
		log.Warn(logAction.EXCEPTION("filemaker session touch failed"), map[string]any{"error": err.Error()})
	}

	var result map[string]any
	_ = json.Unmarshal([]byte(env.Response.ScriptResult), &result)
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   dependencyName,
		ResponseTime: elapsedMs,
	}).Debug(logAction.HTTP_RESPONSE(dependencyName, "script "+script), map[string]any{
		"status": status,
		"result": result,
	}, fileMakerMasking...)

	if err := json.Unmarshal([]byte(env.Response.ScriptResult), out); err != nil {
		metrics.FileMakerRequests.WithLabelValues(script, "error").Inc()
		return fmt.Errorf("%w: decode %s result: %v", ErrTransport, script, err)
	}
	metrics.FileMakerRequests.WithLabelValues(script, "success").Inc()
	return nil
}

// ClearSession revokes the current session on the server and forgets it.
func (c *Client) ClearSession(ctx context.Context) error {
	sess, ok, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok || sess.Token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.databaseURL("sessions", sess.Token), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, _, err := c.send(req)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: clear session: status %d", ErrTransport, status)
	}
	return c.store.Delete(ctx)
}

func (c *Client) token(ctx context.Context) (string, error) {
	if token, ok := c.cachedToken(ctx); ok {
		return token, nil
	}
	if c.refresh == nil {
		return c.acquire(ctx)
	}
	v, err, _ := c.refresh.Do(c.username, func() (any, error) {
		if token, ok := c.cachedToken(ctx); ok {
			return token, nil
		}
		return c.acquire(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) cachedToken(ctx context.Context) (string, bool) {
	sess, ok, err := c.store.Load(ctx)
	if err != nil {
		mlog.L(ctx).Warn(logAction.EXCEPTION("filemaker session load failed"), map[string]any{"error": err.Error()})
		return "", false
	}
	if !ok || sess.Token == "" || c.now().Sub(sess.LastUse) >= TokenTimeout {
		return "", false
	}
	return sess.Token, true
}

func (c *Client) acquire(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.databaseURL("sessions"), bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: dependencyName,
	}).Debug(logAction.HTTP_REQUEST(dependencyName, "acquire session"), map[string]any{
		"database": c.database,
	})

	resp, err := c.httpClient.Do(req)
	elapsedMs := time.Since(start).Milliseconds()
	if err != nil {
		metrics.FileMakerSessionAcquisitions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: acquire session: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	token := resp.Header.Get(tokenHeader)
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   dependencyName,
		ResponseTime: elapsedMs,
	}).Debug(logAction.HTTP_RESPONSE(dependencyName, "acquire session"), map[string]any{
		"status": resp.StatusCode,
		"token":  token,
	}, fileMakerMasking...)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FileMakerSessionAcquisitions.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
	}
	if token == "" {
		metrics.FileMakerSessionAcquisitions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: no %s header in session response", ErrTransport, tokenHeader)
	}

	if err := c.store.Save(ctx, Session{Token: token, LastUse: c.now()}); err != nil {
		log.Warn(logAction.EXCEPTION("filemaker session save failed"), map[string]any{"error": err.Error()})
	}
	metrics.FileMakerSessionAcquisitions.WithLabelValues("success").Inc()
	return token, nil
}

func (c *Client) send(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read %s: %v", ErrTransport, req.URL.Path, err)
	}
	return resp.StatusCode, raw, nil
}
