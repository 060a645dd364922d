// Package demotarget is a local HTTP server for exercising the metadata
// collector end to end: pages with distinctive headers, cookies and titles,
// endpoints that return permanent and transient status codes, redirect
// chains, and a slow endpoint for timeout testing.
package demotarget

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PageDefinition describes one servable page.
type PageDefinition struct {
	Path    string
	Title   string
	Body    string
	Headers map[string]string
	Cookies map[string]string
}

// DemoTarget is a simple HTTP server the collector can be pointed at.
type DemoTarget struct {
	cfg   Config
	pages map[string]PageDefinition
}

// NewDemoTarget creates a new demo target instance.
func NewDemoTarget(cfg Config) *DemoTarget {
	pageMap := make(map[string]PageDefinition)
	for _, p := range defaultPages() {
		pageMap[p.Path] = p
	}
	return &DemoTarget{cfg: cfg, pages: pageMap}
}

func defaultPages() []PageDefinition {
	return []PageDefinition{
		{
			Path:  "/",
			Title: "Demo Target Home",
			Body:  "<p>Welcome. Point the metadata collector at this server.</p>",
			Headers: map[string]string{
				"X-Demo-Page": "home",
			},
			Cookies: map[string]string{
				"session_id": "demo-session-12345",
			},
		},
		{
			Path:  "/about",
			Title: "About the Demo Target",
			Body:  "<p>Pages, statuses, redirects and delays for collector testing.</p>",
			Headers: map[string]string{
				"X-Demo-Page":   "about",
				"Cache-Control": "max-age=600",
			},
			Cookies: map[string]string{
				"visited_about": "true",
				"theme":         "dark",
			},
		},
		{
			Path:  "/products",
			Title: "Product Catalog",
			Body:  "<ul><li>Widget</li><li>Gadget</li></ul>",
			Headers: map[string]string{
				"X-Demo-Page":  "products",
				"X-Item-Count": "2",
			},
		},
	}
}

// Handler builds the full route table.
func (s *DemoTarget) Handler() http.Handler {
	mux := http.NewServeMux()

	for path := range s.pages {
		p := path // capture for closure
		mux.HandleFunc(p, s.pageHandler(p))
	}

	mux.HandleFunc("/status/", s.statusHandler)
	mux.HandleFunc("/redirect/", s.redirectHandler)
	mux.HandleFunc("/slow", s.slowHandler)

	return mux
}

// Start starts the demo target server.
func (s *DemoTarget) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo target starting on http://localhost%s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// pageHandler returns a handler for a specific page path.
func (s *DemoTarget) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := s.pages[path]
		if !ok || r.URL.Path != path {
			http.NotFound(w, r)
			return
		}

		for k, v := range page.Headers {
			w.Header().Set(k, v)
		}
		for name, value := range page.Cookies {
			http.SetCookie(w, &http.Cookie{Name: name, Value: value, Path: "/"})
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		fmt.Fprintf(w, "<html><head><title>%s</title></head><body>%s</body></html>", page.Title, page.Body)
	}
}

// statusHandler serves /status/{code}, returning that status code. Useful
// codes: 404 and 410 for permanent failures, 503 and 429 for transient ones.
func (s *DemoTarget) statusHandler(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "bad status code", http.StatusBadRequest)
		return
	}
	if code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(code)
	fmt.Fprintf(w, "status %d\n", code)
}

// redirectHandler serves /redirect/{n}: n > 1 redirects to /redirect/{n-1},
// n == 1 redirects to the home page. /redirect/15 exceeds the collector's
// default redirect limit.
func (s *DemoTarget) redirectHandler(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/redirect/"))
	if err != nil || n < 1 {
		http.Error(w, "bad redirect count", http.StatusBadRequest)
		return
	}
	if n == 1 {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/redirect/%d", n-1), http.StatusFound)
}

// slowHandler delays the response; ?delay= overrides the 5s default with a
// duration string like 200ms.
func (s *DemoTarget) slowHandler(w http.ResponseWriter, r *http.Request) {
	delay := 5 * time.Second
	if d := r.URL.Query().Get("delay"); d != "" {
		if parsed, err := time.ParseDuration(d); err == nil && parsed > 0 {
			delay = parsed
		}
	}

	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><head><title>Slow Page</title></head><body>waited %s</body></html>", delay)
}
