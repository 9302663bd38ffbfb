package kp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/pkg/csrf"
	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/logger"
	"github.com/sing3demons/oryfm/pkg/mlog"
	"github.com/sing3demons/oryfm/pkg/view"
)

const MaxBodySize = 1 << 20

type ContentType string

const (
	ContentTypeJSON      ContentType = "application/json"
	ContentTypeForm      ContentType = "application/x-www-form-urlencoded"
	ContentTypePlainText ContentType = "text/plain"
)

type CtxKey string

const (
	SessionID     CtxKey = "x-session-id"
	TransactionID CtxKey = "x-transaction-id"
)

// Renderer draws a named page.
type Renderer interface {
	Render(w io.Writer, name string, data view.Data) error
}

type Ctx struct {
	Res  http.ResponseWriter
	Req  *http.Request
	Cfg  *config.AppConfig
	Log  *logger.Logger
	view Renderer
	csrf *csrf.Manager
}

func newMuxContext(w http.ResponseWriter, r *http.Request, cfg *config.AppConfig, v Renderer, cm *csrf.Manager) *Ctx {
	log := logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig)
	c := &Ctx{
		Res:  w,
		Req:  r.WithContext(mlog.With(r.Context(), log)),
		Cfg:  cfg,
		Log:  log,
		view: v,
		csrf: cm,
	}
	c.TransactionID()
	return c
}

// TransactionID returns the request's transaction id: the context value, then
// the x-transaction-id header, then the tid query value, then a new UUID.
func (c *Ctx) TransactionID() string {
	if tid, ok := c.Req.Context().Value(TransactionID).(string); ok && tid != "" {
		return tid
	}

	tid := pick(c.Req.Header.Get(string(TransactionID)), c.Req.URL.Query().Get("tid"))
	if tid == "" {
		tid = uuid.NewString()
	}
	c.Req = c.Req.WithContext(context.WithValue(c.Req.Context(), TransactionID, tid))
	c.Log.SetTransactionID(tid)
	return tid
}

// SessionID works like TransactionID with the x-session-id header and sid
// query value.
func (c *Ctx) SessionID() string {
	if sid, ok := c.Req.Context().Value(SessionID).(string); ok && sid != "" {
		return sid
	}

	sid := pick(c.Req.Header.Get(string(SessionID)), c.Req.URL.Query().Get("sid"))
	if sid == "" {
		sid = uuid.NewString()
	}
	c.Req = c.Req.WithContext(context.WithValue(c.Req.Context(), SessionID, sid))
	c.Log.SetSessionID(sid)
	return sid
}

func pick(header, query string) string {
	header, query = strings.TrimSpace(header), strings.TrimSpace(query)
	switch {
	case header != "" && query != "" && header != query:
		return header + ":" + query
	case header != "":
		return header
	default:
		return query
	}
}

func (c *Ctx) Context() context.Context {
	if c.Req == nil {
		return context.Background()
	}
	return c.Req.Context()
}

func (c *Ctx) Params(name string) string {
	return c.Req.PathValue(name)
}

func (c *Ctx) Query(name string) string {
	return c.Req.URL.Query().Get(name)
}

// AbsoluteURL prefixes path with the scheme and host the request came in on.
func (c *Ctx) AbsoluteURL(path string) string {
	scheme := "http"
	if c.Req.TLS != nil {
		scheme = "https"
	}
	if proto := c.Req.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + c.Req.Host + path
}

// L names the use case and logs the inbound request. Credential fields are
// always masked; masking adds to them.
func (c *Ctx) L(useCase string, masking ...logger.MaskingRule) *logger.Logger {
	masking = append(append([]logger.MaskingRule{}, logger.CredentialMasking...), masking...)
	c.Log.SetUseCase(useCase)
	c.SessionID()

	body := map[string]string{}
	_ = c.Bind(&body)

	c.Log.Info(logAction.INBOUND(fmt.Sprintf("client %s %s server", c.Req.Method, c.Req.URL.Path)), map[string]any{
		"method":  c.Req.Method,
		"url":     c.Req.URL.String(),
		"headers": c.Headers(),
		"query":   c.QueryString(),
		"body":    body,
		"remote":  c.Req.RemoteAddr,
	}, masking...)
	return c.Log
}

func (c *Ctx) Headers() map[string]string {
	headers := make(map[string]string, len(c.Req.Header))
	for key, values := range c.Req.Header {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}

func (c *Ctx) QueryString() map[string]string {
	queries := make(map[string]string)
	for key, values := range c.Req.URL.Query() {
		if len(values) > 0 {
			queries[key] = values[0]
		}
	}
	return queries
}

// Bind decodes the request body by content type. GET and HEAD bind nothing.
func (c *Ctx) Bind(v any) error {
	if c.Req.Method == http.MethodGet || c.Req.Method == http.MethodHead || c.Req.Body == nil {
		return nil
	}

	contentType := c.Req.Header.Get("Content-Type")
	if contentType == "" {
		contentType = string(ContentTypeJSON)
	}
	baseContentType := strings.TrimSpace(strings.Split(contentType, ";")[0])

	bodyBytes, err := io.ReadAll(io.LimitReader(c.Req.Body, MaxBodySize+1))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(bodyBytes) > MaxBodySize {
		return fmt.Errorf("request body too large (max %d bytes)", MaxBodySize)
	}
	c.Req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	switch ContentType(baseContentType) {
	case ContentTypeJSON:
		if len(bodyBytes) == 0 {
			return errors.New("empty JSON body")
		}
		if err := json.Unmarshal(bodyBytes, v); err != nil {
			return fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
		return nil
	case ContentTypeForm:
		values, err := url.ParseQuery(string(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to parse form data: %w", err)
		}
		return bindForm(values, v)
	case ContentTypePlainText:
		target, ok := v.(*string)
		if !ok {
			return errors.New("plain text can only be parsed into *string")
		}
		*target = string(bodyBytes)
		return nil
	default:
		return fmt.Errorf("unsupported content type: %s", contentType)
	}
}

// bindForm fills a map or a struct whose fields carry `form` tags. Bool
// fields are true unless empty, "0" or "false".
func bindForm(values url.Values, v any) error {
	switch target := v.(type) {
	case *map[string]string:
		result := make(map[string]string, len(values))
		for key := range values {
			result[key] = values.Get(key)
		}
		*target = result
		return nil
	case *url.Values:
		*target = values
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("cannot bind form into %T", v)
	}
	rv = rv.Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name := field.Tag.Get("form")
		if name == "" || name == "-" || !field.IsExported() {
			continue
		}
		raw := values.Get(name)
		switch field.Type.Kind() {
		case reflect.String:
			rv.Field(i).SetString(raw)
		case reflect.Bool:
			rv.Field(i).SetBool(raw != "" && raw != "0" && !strings.EqualFold(raw, "false"))
		case reflect.Int, reflect.Int64:
			if raw == "" {
				continue
			}
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("form field %s: %w", name, err)
			}
			rv.Field(i).SetInt(n)
		default:
			return fmt.Errorf("form field %s: unsupported kind %s", name, field.Type.Kind())
		}
	}
	return nil
}

// Render writes page with status. A CSRF token is added when the service has
// CSRF protection configured.
func (c *Ctx) Render(status int, page string, data view.Data) {
	if c.view == nil {
		c.Error(errors.New("no renderer configured"))
		return
	}
	if data == nil {
		data = view.Data{}
	}
	if c.csrf != nil {
		token, err := c.csrf.Issue(c.Res, c.Req)
		if err != nil {
			c.Error(err)
			return
		}
		data["csrfToken"] = token
	}

	var buf bytes.Buffer
	if err := c.view.Render(&buf, page, data); err != nil {
		c.Log.Error(logAction.EXCEPTION("render "+page), map[string]any{"error": err.Error()})
		http.Error(c.Res, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		c.Log.FlushError(http.StatusInternalServerError, "render_failed")
		return
	}

	c.Res.Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Res.WriteHeader(status)
	c.Res.Write(buf.Bytes())

	c.Log.Info(logAction.OUTBOUND("server render page to client"), map[string]any{
		"status": status,
		"page":   page,
	})
	if status >= http.StatusBadRequest {
		c.Log.FlushError(status, c.statusMessage(status))
		return
	}
	c.Log.Flush(status, c.statusMessage(status))
}

func (c *Ctx) Redirect(location string) {
	http.Redirect(c.Res, c.Req, location, http.StatusFound)
	c.Log.Info(logAction.OUTBOUND("server redirect to client"), map[string]any{
		"status": http.StatusFound,
		"url":    location,
	})
	c.Log.Flush(http.StatusFound, "redirect")
}

// Error renders the error page. Details are shown only in development.
func (c *Ctx) Error(err error) {
	status := StatusOf(err)
	if errors.Is(err, csrf.ErrInvalidToken) {
		status = http.StatusForbidden
	}

	c.Log.Error(logAction.EXCEPTION("request failed"), map[string]any{
		"status": status,
		"error":  err.Error(),
	})
	c.Log.AddMetadata("ErrorCode", err.Error())

	data := view.Data{"message": http.StatusText(status)}
	if c.Cfg != nil && c.Cfg.IsDevelopment() {
		data["detail"] = err.Error()
	}

	if c.view == nil {
		http.Error(c.Res, http.StatusText(status), status)
		c.Log.FlushError(status, c.statusMessage(status))
		return
	}
	var buf bytes.Buffer
	if rerr := c.view.Render(&buf, view.Error, data); rerr != nil {
		http.Error(c.Res, http.StatusText(status), status)
	} else {
		c.Res.Header().Set("Content-Type", "text/html; charset=utf-8")
		c.Res.WriteHeader(status)
		c.Res.Write(buf.Bytes())
	}
	c.Log.FlushError(status, c.statusMessage(status))
}

func (c *Ctx) JSON(code int, v any, masking ...logger.MaskingRule) {
	c.Res.Header().Set("Content-Type", "application/json")
	c.Res.Header().Set("x-session-id", c.Log.SessionID())
	c.Res.WriteHeader(code)
	json.NewEncoder(c.Res).Encode(v)

	c.Log.Info(logAction.OUTBOUND("server response to client"), map[string]any{
		"status": code,
		"body":   v,
	}, masking...)
	c.Log.Flush(code, c.statusMessage(code))
}

func (c *Ctx) statusMessage(code int) string {
	msg := http.StatusText(code)
	if msg == "" {
		return "unknown_status"
	}
	return strings.ToLower(strings.ReplaceAll(msg, " ", "_"))
}
