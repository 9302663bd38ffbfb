package hydra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/internal/metrics"
	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/logger"
	"github.com/sing3demons/oryfm/pkg/mlog"
)

const (
	dependencyName = "hydra"
	maxBodySize    = 1 << 20
	defaultTimeout = 15 * time.Second
)

// Client talks to the authorization server admin API. One instance is shared
// by every request.
type Client struct {
	adminURL           *url.URL
	httpClient         *http.Client
	mockTLSTermination bool
}

func NewClient(cfg config.HydraConfig, httpClient *http.Client) (*Client, error) {
	if cfg.AdminURL == "" {
		return nil, fmt.Errorf("%w: hydra admin url is empty", config.ErrInvalidConfig)
	}
	u, err := url.Parse(cfg.AdminURL)
	if err != nil {
		return nil, fmt.Errorf("%w: hydra admin url: %v", config.ErrInvalidConfig, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Client{adminURL: u, httpClient: httpClient, mockTLSTermination: cfg.MockTLSTermination}, nil
}

func (c *Client) requestURL(flow Flow, action Action, challenge string) string {
	segments := []string{"oauth2", "auth", "requests", string(flow)}
	if action != "" {
		segments = append(segments, string(action))
	}
	u := c.adminURL.JoinPath(segments...)
	q := url.Values{}
	q.Set(string(flow)+"_challenge", challenge)
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch loads the pending request of flow identified by challenge into out.
func (c *Client) Fetch(ctx context.Context, flow Flow, challenge string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(flow, "", challenge), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return c.do(req, flow, "fetch", out)
}

// Put completes the pending request of flow with action and returns where the
// user agent goes next.
func (c *Client) Put(ctx context.Context, flow Flow, action Action, challenge string, body any) (*CompletedRequest, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s %s body: %v", ErrTransport, flow, action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.requestURL(flow, action, challenge), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.mockTLSTermination {
		req.Header.Set("X-Forwarded-Proto", "https")
	}

	var completed CompletedRequest
	if err := c.do(req, flow, string(action), &completed); err != nil {
		return nil, err
	}
	return &completed, nil
}

func (c *Client) GetLoginRequest(ctx context.Context, challenge string) (*LoginRequest, error) {
	var lr LoginRequest
	if err := c.Fetch(ctx, FlowLogin, challenge, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

func (c *Client) AcceptLoginRequest(ctx context.Context, challenge string, body AcceptLoginRequest) (*CompletedRequest, error) {
	return c.Put(ctx, FlowLogin, ActionAccept, challenge, body)
}

func (c *Client) RejectLoginRequest(ctx context.Context, challenge string, body RejectRequest) (*CompletedRequest, error) {
	return c.Put(ctx, FlowLogin, ActionReject, challenge, body)
}

func (c *Client) GetConsentRequest(ctx context.Context, challenge string) (*ConsentRequest, error) {
	var cr ConsentRequest
	if err := c.Fetch(ctx, FlowConsent, challenge, &cr); err != nil {
		return nil, err
	}
	return &cr, nil
}

func (c *Client) AcceptConsentRequest(ctx context.Context, challenge string, body AcceptConsentRequest) (*CompletedRequest, error) {
	return c.Put(ctx, FlowConsent, ActionAccept, challenge, body)
}

func (c *Client) RejectConsentRequest(ctx context.Context, challenge string, body RejectRequest) (*CompletedRequest, error) {
	return c.Put(ctx, FlowConsent, ActionReject, challenge, body)
}

func (c *Client) GetLogoutRequest(ctx context.Context, challenge string) (*LogoutRequest, error) {
	var lr LogoutRequest
	if err := c.Fetch(ctx, FlowLogout, challenge, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

func (c *Client) AcceptLogoutRequest(ctx context.Context, challenge string) (*CompletedRequest, error) {
	return c.Put(ctx, FlowLogout, ActionAccept, challenge, AcceptLogoutRequest{})
}

func (c *Client) RejectLogoutRequest(ctx context.Context, challenge string) (*CompletedRequest, error) {
	return c.Put(ctx, FlowLogout, ActionReject, challenge, RejectRequest{})
}

// GetClient loads a registered OAuth2 client. Anything but 200 is an error.
func (c *Client) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	u := c.adminURL.JoinPath("clients", clientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	status, raw, err := c.send(req, "client", "fetch")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &Error{Flow: "client", Action: "fetch", StatusCode: status, Message: http.StatusText(status)}
	}
	var oc OAuth2Client
	if err := json.Unmarshal(raw, &oc); err != nil {
		return nil, fmt.Errorf("%w: decode client %s: %v", ErrTransport, clientID, err)
	}
	return &oc, nil
}

func (c *Client) do(req *http.Request, flow Flow, action string, out any) error {
	status, raw, err := c.send(req, flow, action)
	if err != nil {
		return err
	}
	if status < http.StatusOK || status > http.StatusFound {
		return decodeError(flow, action, status, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s %s response: %v", ErrTransport, flow, action, err)
	}
	return nil
}

// send performs req and returns status and body, logging the exchange on the
// request-scoped logger.
func (c *Client) send(req *http.Request, flow Flow, action string) (int, []byte, error) {
	start := time.Now()
	log := mlog.L(req.Context())
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: dependencyName,
	}).Debug(logAction.HTTP_REQUEST(dependencyName, fmt.Sprintf("%s %s", req.Method, req.URL.Path)), map[string]any{
		"method": req.Method,
		"url":    req.URL.String(),
		"flow":   flow,
		"action": action,
	})

	resp, err := c.httpClient.Do(req)
	elapsedMs := time.Since(start).Milliseconds()
	if err != nil {
		log.SetDependencyMetadata(logger.DependencyMetadata{
			Dependency:   dependencyName,
			ResponseTime: elapsedMs,
		}).Error(logAction.HTTP_RESPONSE(dependencyName, "hydra unreachable"), map[string]any{"error": err.Error()})
		metrics.HydraRequests.WithLabelValues(string(flow), action, "error").Inc()
		return 0, nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.HydraRequests.WithLabelValues(string(flow), action, "error").Inc()
		return 0, nil, fmt.Errorf("%w: read %s %s: %v", ErrTransport, req.Method, req.URL.Path, err)
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   dependencyName,
		ResponseTime: elapsedMs,
	}).Debug(logAction.HTTP_RESPONSE(dependencyName, "hydra response"), map[string]any{
		"status": resp.StatusCode,
		"body":   json.RawMessage(safeJSON(raw)),
	})

	outcome := "success"
	if resp.StatusCode < http.StatusOK || resp.StatusCode > http.StatusFound {
		outcome = "error"
	}
	metrics.HydraRequests.WithLabelValues(string(flow), action, outcome).Inc()
	return resp.StatusCode, raw, nil
}

func decodeError(flow Flow, action string, status int, raw []byte) error {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("%w: decode %s %s error body (status %d): %v", ErrTransport, flow, action, status, err)
	}
	return &Error{Flow: flow, Action: action, StatusCode: status, Message: body.Error.Message}
}

func safeJSON(raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

// IsDelegationError reports whether err came back from the admin API as a
// protocol error rather than a transport failure.
func IsDelegationError(err error) bool {
	return errors.Is(err, ErrDelegation)
}
