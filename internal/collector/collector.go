// Package collector performs the single HTTP GET behind every metadata
// record: bounded redirects, bounded timeouts, and classification of every
// outcome into success, permanent failure, or transient failure.
package collector

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dkarali/urlmeta/internal/logging"
)

// Status codes that indicate permanent failure (never retry).
var permanentStatusCodes = map[int]struct{}{
	400: {}, 401: {}, 403: {}, 404: {}, 405: {}, 406: {}, 410: {}, 414: {}, 451: {},
}

// Status codes that indicate transient failure (worth retrying).
var transientStatusCodes = map[int]struct{}{
	408: {}, 429: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

var errTooManyRedirects = errors.New("too many redirects")

// Config controls the outbound HTTP behavior.
type Config struct {
	Timeout        time.Duration // overall request deadline, default 30s
	ConnectTimeout time.Duration // dial + TLS handshake, default 10s
	MaxRedirects   int           // default 10
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.MaxRedirects <= 0 {
		out.MaxRedirects = 10
	}
	return out
}

// CollectedData is the structured result of one successful collection.
type CollectedData struct {
	Headers    map[string]string
	Cookies    map[string]string
	PageSource string
	PageTitle  string
	StatusCode int
}

// Collector fetches URL metadata over HTTP. Safe for concurrent use.
type Collector struct {
	client *http.Client
	cfg    Config
	logger logging.Logger
}

// New creates a Collector. If httpClient is nil, one is built from cfg.
func New(cfg Config, logger logging.Logger, httpClient *http.Client) *Collector {
	cfg = cfg.withDefaults()
	componentLogger := logger.With(logging.Field{Key: "component", Value: "collector"})

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		}
	} else {
		// Shallow copy: the redirect policy below must not leak into a
		// client the caller still owns.
		clone := *httpClient
		httpClient = &clone
	}
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= cfg.MaxRedirects {
			return errTooManyRedirects
		}
		return nil
	}

	componentLogger.Info("created collector",
		logging.Field{Key: "timeout", Value: cfg.Timeout.String()},
		logging.Field{Key: "max_redirects", Value: cfg.MaxRedirects})

	return &Collector{client: httpClient, cfg: cfg, logger: componentLogger}
}

// Fetch performs one GET with redirect following and returns the collected
// metadata, or a classified *Error.
func (c *Collector) Fetch(ctx context.Context, url string) (*CollectedData, error) {
	c.logger.Debug("fetching url", logging.Field{Key: "url", Value: url})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Kind: KindPermanent, Reason: fmt.Sprintf("invalid request: %v", err), Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cerr := c.classifyTransportError(url, err)
		c.logger.Warn("fetch failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: cerr.Reason})
		return nil, cerr
	}
	defer resp.Body.Close()

	// Classify the final (post-redirect) status before touching the body.
	if _, ok := permanentStatusCodes[resp.StatusCode]; ok {
		return nil, &Error{
			URL: url, Kind: KindPermanent,
			Reason: fmt.Sprintf("HTTP %d: permanent failure", resp.StatusCode),
		}
	}
	if _, ok := transientStatusCodes[resp.StatusCode]; ok {
		return nil, &Error{
			URL: url, Kind: KindTransient,
			Reason: fmt.Sprintf("HTTP %d: server error, retryable", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: url, Kind: KindTransient, Reason: fmt.Sprintf("read body: %v", err), Err: err}
	}

	data := &CollectedData{
		Headers:    flattenHeaders(resp.Header),
		Cookies:    flattenCookies(resp.Cookies()),
		PageSource: string(body),
		PageTitle:  extractTitle(body),
		StatusCode: resp.StatusCode,
	}

	c.logger.Info("fetched url",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "size", Value: len(body)})

	return data, nil
}

// classifyTransportError maps a failed round trip to a classified error.
// Typed errors are preferred; the DNS substring checks remain as a fallback
// for resolver libraries that do not surface *net.DNSError.
func (c *Collector) classifyTransportError(url string, err error) *Error {
	// Redirect limit exceeded
	if errors.Is(err, errTooManyRedirects) {
		return &Error{URL: url, Kind: KindPermanent, Reason: "too many redirects", Err: err}
	}

	// DNS: a definitive not-found is permanent, other resolver trouble is
	// transient.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return &Error{
				URL: url, Kind: KindPermanent,
				Reason: fmt.Sprintf("DNS resolution failed, domain does not exist: %v", dnsErr),
				Err:    err,
			}
		}
		return &Error{URL: url, Kind: KindTransient, Reason: fmt.Sprintf("DNS lookup failed: %v", dnsErr), Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"name or service not known",
		"no address associated",
		"getaddrinfo failed",
		"nodename nor servname",
		"no such host",
	} {
		if strings.Contains(msg, needle) {
			return &Error{
				URL: url, Kind: KindPermanent,
				Reason: fmt.Sprintf("DNS resolution failed, domain does not exist: %v", err),
				Err:    err,
			}
		}
	}

	// TLS verification failures are permanent.
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostnameErr) {
		return &Error{URL: url, Kind: KindPermanent, Reason: fmt.Sprintf("TLS verification failed: %v", err), Err: err}
	}

	// Timeouts
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{
			URL: url, Kind: KindTransient,
			Reason: fmt.Sprintf("request timed out after %s", c.cfg.Timeout),
			Err:    err,
		}
	}

	// Connection refused / reset
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return &Error{URL: url, Kind: KindTransient, Reason: fmt.Sprintf("connection failed: %v", err), Err: err}
	}

	// Anything unclassified is worth a retry.
	return &Error{URL: url, Kind: KindTransient, Reason: fmt.Sprintf("connection failed: %v", err), Err: err}
}

// flattenHeaders lowercases header names so two fetches of the same URL can
// never produce differently-cased keys in the stored document. Multi-valued
// headers are joined.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	return out
}

// flattenCookies collapses Set-Cookie values to a name -> value map;
// a repeated name keeps the last value.
func flattenCookies(cookies []*http.Cookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}

// extractTitle pulls the first <title> text from the body. Non-HTML bodies
// yield an empty title.
func extractTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
