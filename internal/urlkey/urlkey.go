// Package urlkey maps raw input URLs to the canonical form used as the
// cache key for metadata records. The same logical URL must always produce
// the same key, so variants like http://Example.COM, https://example.com/path/
// and https://example.com/path#section collapse to one record.
package urlkey

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL    = errors.New("urlkey: empty url")
	ErrMissingHost = errors.New("urlkey: missing host")
)

// Canonicalize returns the deterministic canonical form of raw.
//
// Transformations applied, in order:
//  1. Prepend https:// when the scheme is absent
//  2. Lowercase scheme and host (IDN hosts become punycode)
//  3. Strip default ports (:80 for http, :443 for https)
//  4. Empty path becomes "/"; a trailing slash is stripped (except root)
//  5. Query parameters are sorted by name, first value wins
//  6. Fragment and userinfo are dropped
//
// Canonicalize is idempotent: Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}

	// Schemeless inputs default to https. The check is a case-insensitive
	// prefix test, not a "://" scan, so only http(s) inputs pass through.
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("urlkey: parse %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", ErrMissingHost
	}

	u.Scheme = strings.ToLower(u.Scheme)

	// Lowercase host and convert IDN -> punycode
	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}

	// Preserve non-default port only
	port := u.Port()
	switch {
	case (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") || port == "":
		if strings.Contains(host, ":") {
			// bare IPv6 literal needs its brackets back
			u.Host = "[" + host + "]"
		} else {
			u.Host = host
		}
	default:
		u.Host = net.JoinHostPort(host, port)
	}

	// Drop userinfo (credentials) and the fragment
	u.User = nil
	u.Fragment = ""

	// Normalize path: empty becomes root, a trailing slash is stripped
	// everywhere but root. Path case is preserved.
	switch {
	case u.Path == "":
		u.Path = "/"
	case u.Path != "/" && strings.HasSuffix(u.Path, "/"):
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}
	u.RawPath = ""

	u.RawQuery = canonicalQuery(u.RawQuery)

	return u.String(), nil
}

// canonicalQuery re-encodes a raw query as percent-encoded name=value pairs
// sorted by name. Blank values survive; when a name repeats, the first value
// wins.
func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	// ParseQuery is best-effort: it returns whatever pairs it could decode
	// alongside the error, which is all we need for a cache key.
	values, _ := url.ParseQuery(rawQuery)
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	first := url.Values{}
	for _, k := range keys {
		if vs := values[k]; len(vs) > 0 {
			first.Set(k, vs[0])
		}
	}
	return first.Encode()
}
