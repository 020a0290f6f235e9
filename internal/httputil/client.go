// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// Transport defaults. Per-request deadlines are applied by callers through
// contexts; these bound the connection phases.
const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultKeepAlive             = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultMaxIdleConnsPerHost   = 4
	maxRedirects                 = 10
)

// NewClient returns an *http.Client with bounded dial, TLS and header phases.
// cfg.Timeout becomes the whole-request ceiling when set.
func NewClient(cfg types.HTTPConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAlive,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// WithoutRedirects returns a shallow copy of client that hands 3xx responses
// back to the caller instead of following them.
func WithoutRedirects(client *http.Client) *http.Client {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

// WithRedirectJar returns a shallow copy of client that follows redirects
// with a private cookie jar, so cookies set by intermediate hops (proxy
// session starters, publisher consent cookies) are replayed on the next hop.
// The explicit Cookie header of the original request is still sent.
func WithRedirectJar(client *http.Client) *http.Client {
	c := *client
	jar, _ := cookiejar.New(nil)
	c.Jar = jar
	c.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return &c
}
