package kp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/pkg/csrf"
)

type MyHandler func(ctx *Ctx)
type HandleFunc func(http.Handler) http.Handler
type Middleware HandleFunc

type IMicroservice interface {
	Start()
	Handler() http.Handler

	GET(path string, handler MyHandler, middlewares ...Middleware)
	POST(path string, handler MyHandler, middlewares ...Middleware)
	Methods(methods, path string, handler MyHandler, middlewares ...Middleware)
	Handle(pattern string, handler http.Handler)

	Use(middleware Middleware)
}

type Microservice struct {
	config      *config.AppConfig
	mux         *http.ServeMux
	middlewares []Middleware
	view        Renderer
	csrf        *csrf.Manager
}

type Option func(*Microservice)

// WithRenderer sets the page renderer used by Ctx.Render and Ctx.Error.
func WithRenderer(r Renderer) Option {
	return func(m *Microservice) { m.view = r }
}

// WithCSRF protects every POST route and adds a token to rendered pages.
func WithCSRF(cm *csrf.Manager) Option {
	return func(m *Microservice) { m.csrf = cm }
}

func NewMicroservice(cfg *config.AppConfig, opts ...Option) *Microservice {
	m := &Microservice{
		config: cfg,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler returns the mux wrapped in the global middlewares, first added
// outermost.
func (m *Microservice) Handler() http.Handler {
	var handler http.Handler = m.mux
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		handler = m.middlewares[i](handler)
	}
	return handler
}

func (m *Microservice) Start() {
	srv := http.Server{
		Addr:         ":" + m.config.Port,
		Handler:      m.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		log.Printf("starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server listen err: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
		os.Exit(1)
	}
	wg.Wait()
	log.Println("server exited")
}

func (m *Microservice) Use(middleware Middleware) {
	m.middlewares = append(m.middlewares, middleware)
}

// Fail renders err for a request that never reached a handler.
func (m *Microservice) Fail(w http.ResponseWriter, r *http.Request, err error) {
	newMuxContext(w, r, m.config, m.view, m.csrf).Error(err)
}

func (m *Microservice) preHandle(handler MyHandler, middlewares ...Middleware) http.HandlerFunc {
	final := func(w http.ResponseWriter, r *http.Request) {
		handler(newMuxContext(w, r, m.config, m.view, m.csrf))
	}
	// first middleware is outermost
	for i := len(middlewares) - 1; i >= 0; i-- {
		final = middlewares[i](http.HandlerFunc(final)).ServeHTTP
	}
	return final
}

func (m *Microservice) GET(path string, handler MyHandler, middlewares ...Middleware) {
	m.mux.HandleFunc(fmt.Sprintf("%s %s", http.MethodGet, path), m.preHandle(handler, middlewares...))
}

func (m *Microservice) POST(path string, handler MyHandler, middlewares ...Middleware) {
	if m.csrf != nil {
		middlewares = append([]Middleware{Middleware(m.csrf.Protect(m.Fail))}, middlewares...)
	}
	m.mux.HandleFunc(fmt.Sprintf("%s %s", http.MethodPost, path), m.preHandle(handler, middlewares...))
}

// Methods registers handler for a comma separated list of methods.
func (m *Microservice) Methods(methods, path string, handler MyHandler, middlewares ...Middleware) {
	for _, method := range strings.Split(methods, ",") {
		method = strings.ToUpper(strings.TrimSpace(method))
		if method == http.MethodPost {
			m.POST(path, handler, middlewares...)
			continue
		}
		m.mux.HandleFunc(fmt.Sprintf("%s %s", method, path), m.preHandle(handler, middlewares...))
	}
}

// Handle mounts a plain handler, for static files and metrics.
func (m *Microservice) Handle(pattern string, handler http.Handler) {
	m.mux.Handle(pattern, handler)
}
