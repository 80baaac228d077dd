// Package web renders the HTML pages: the root layout that loads the Clerk
// browser SDK, the home page and the sign-in/sign-up pages, plus the badge
// component shared by them.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Badge variants.
const (
	BadgeDefault     = "default"
	BadgeSecondary   = "secondary"
	BadgeDestructive = "destructive"
	BadgeOutline     = "outline"
)

// BadgeProps is the data of the badge template.
type BadgeProps struct {
	Variant string
	Text    string
}

// NewBadgeProps normalizes variant; unknown variants render as default.
func NewBadgeProps(variant, text string) BadgeProps {
	switch variant {
	case BadgeDefault, BadgeSecondary, BadgeDestructive, BadgeOutline:
	default:
		variant = BadgeDefault
	}
	return BadgeProps{Variant: variant, Text: text}
}

var funcs = template.FuncMap{"badge": NewBadgeProps}

// base is only ever cloned, never executed, so pages can keep cloning it.
var base = template.Must(template.New("base").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/badge.html"))

var badgeTmpl = template.Must(template.New("badge.html").ParseFS(templateFS, "templates/badge.html"))

// Badge renders the badge component to HTML.
func Badge(variant, text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := badgeTmpl.ExecuteTemplate(&buf, "badge", NewBadgeProps(variant, text)); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Config holds what the layout needs to load Clerk.
type Config struct {
	AppName        string
	PublishableKey string
	FrontendAPI    string
}

// ClerkJSURL is where the browser SDK is loaded from.
func (c Config) ClerkJSURL() string {
	host := strings.TrimPrefix(strings.TrimPrefix(c.FrontendAPI, "https://"), "http://")
	if host == "" {
		return "https://cdn.jsdelivr.net/npm/@clerk/clerk-js@5/dist/clerk.browser.js"
	}
	return "https://" + host + "/npm/@clerk/clerk-js@5/dist/clerk.browser.js"
}

type pageData struct {
	Config
	Title string
}

// Pages serves the rendered pages.
type Pages struct {
	cfg    Config
	logger *zap.SugaredLogger
	pages  map[string]*template.Template
}

var pageTitles = map[string]string{
	"home":    "Home",
	"sign-in": "Sign in",
	"sign-up": "Sign up",
}

func NewPages(cfg Config, logger *zap.SugaredLogger) (*Pages, error) {
	if cfg.AppName == "" {
		cfg.AppName = "A11y Scanner"
	}
	p := &Pages{cfg: cfg, logger: logger, pages: make(map[string]*template.Template, len(pageTitles))}
	for name := range pageTitles {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		p.pages[name] = t
	}
	return p, nil
}

func (p *Pages) render(w http.ResponseWriter, name string) {
	var buf bytes.Buffer
	data := pageData{Config: p.cfg, Title: pageTitles[name]}
	if err := p.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		p.logger.Errorw("render page failed", "page", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (p *Pages) Home(w http.ResponseWriter, r *http.Request)   { p.render(w, "home") }
func (p *Pages) SignIn(w http.ResponseWriter, r *http.Request) { p.render(w, "sign-in") }
func (p *Pages) SignUp(w http.ResponseWriter, r *http.Request) { p.render(w, "sign-up") }

// Static serves the embedded assets; mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}
