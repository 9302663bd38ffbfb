// Package view renders the HTML pages of the login, consent and password
// reset flows.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"maps"
	"net/http"
)

//go:embed templates
var templateFS embed.FS

//go:embed public
var publicFS embed.FS

// Page names.
const (
	Login                     = "login"
	Consent                   = "consent"
	Error                     = "error"
	HydraError                = "hydra-error"
	PasswordResetRequest      = "password-reset/request"
	PasswordResetRequestDone  = "password-reset/request-success"
	PasswordResetSet          = "password-reset/set"
	PasswordResetSetDone      = "password-reset/set-success"
	PasswordResetInvalidToken = "password-reset/invalid-token"
)

var pages = []string{
	Login, Consent, Error, HydraError,
	PasswordResetRequest, PasswordResetRequestDone,
	PasswordResetSet, PasswordResetSetDone, PasswordResetInvalidToken,
}

// Data is the bag handed to a page.
type Data map[string]any

// Renderer is safe for concurrent use.
type Renderer struct {
	templates map[string]*template.Template
	labels    Labels
	common    Data
}

// New parses every page. common is merged under each page's data.
func New(labels Labels, common Data) (*Renderer, error) {
	if labels == nil {
		labels = Labels{}
	}
	funcs := template.FuncMap{"cl": labels.Get}

	r := &Renderer{templates: make(map[string]*template.Template, len(pages)), labels: labels, common: common}
	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", page, err)
		}
		r.templates[page] = t
	}
	return r, nil
}

func (r *Renderer) Labels() Labels {
	return r.labels
}

func (r *Renderer) Render(w io.Writer, name string, data Data) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	merged := Data{}
	maps.Copy(merged, r.common)
	maps.Copy(merged, data)
	return t.ExecuteTemplate(w, "layout", merged)
}

// Static serves the embedded assets under /public/.
func Static() http.Handler {
	sub, err := fs.Sub(publicFS, "public")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/public/", http.FileServer(http.FS(sub)))
}
