// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cookies loads proxy session cookies from a browser so they can be
// stored as a browser session. Cookies come either from a cookie store file
// on disk (Netscape text, Firefox or Chrome SQLite) or from a live Chrome
// window driven over the DevTools protocol.
//
// Cookie values are credentials. Log names and domains only.
package cookies

import (
	"strings"
	"time"
)

// Format identifies a cookie store layout.
type Format int

const (
	FormatUnknown Format = iota
	FormatNetscape
	FormatFirefox
	// FormatChrome only yields cookies stored unencrypted.
	FormatChrome
)

func (f Format) String() string {
	switch f {
	case FormatNetscape:
		return "Netscape"
	case FormatFirefox:
		return "Firefox"
	case FormatChrome:
		return "Chrome"
	}
	return "unknown"
}

// Cookie is one cookie read from a store or a browser.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expiry   time.Time
	Secure   bool
	HttpOnly bool
}

// Source describes where Import read cookies from.
type Source struct {
	Path   string
	Format Format
	// Skipped counts Netscape lines that could not be parsed.
	Skipped int
}

// Strings renders cookies as name=value pairs, the form a browser session
// stores.
func Strings(cookies []Cookie) []string {
	out := make([]string, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, c.Name+"="+c.Value)
	}
	return out
}

// Header joins cookies into a Cookie header value.
func Header(cookies []Cookie) string {
	return strings.Join(Strings(cookies), "; ")
}

// matchesDomain reports whether a cookie set for cookieDomain applies to
// domain: exact, dot-prefixed, or a subdomain of it.
func matchesDomain(cookieDomain, domain string) bool {
	dot := "." + domain
	return cookieDomain == domain || cookieDomain == dot || strings.HasSuffix(cookieDomain, dot)
}
