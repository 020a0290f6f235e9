// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the HTTP plumbing shared by the PubMed client,
// the credential manager and the acquisition engine.
package httputil

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// HTTP 429 responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 10 * time.Second

const defaultMaxRetries = 5

// Doer is the subset of *http.Client used by this module.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Retrier sends requests through an optional rate limiter and retries
// HTTP 429 (Too Many Requests) with exponential backoff. A Retry-After header
// expressed in seconds overrides the computed backoff.
type Retrier struct {
	Client     Doer
	Limiter    *rate.Limiter
	MaxRetries int
	Log        *zap.Logger
}

// Do executes req. The delay starts at RetryBaseDelay and doubles each
// attempt. When MaxRetries is 0 the default (5) is used. On each 429 the
// response body is drained and closed before sleeping. If ctx is cancelled
// while waiting, Do returns ctx.Err(). After exhausting retries the last 429
// response is returned so the caller can inspect it.
func (r *Retrier) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	maxRetries := r.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	for attempt := 0; ; attempt++ {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := r.Client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}

		backoff := RetryBaseDelay << attempt
		if s, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && s > 0 {
			backoff = time.Duration(s) * time.Second
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		log.Debug("rate limited, backing off",
			zap.String("host", req.URL.Host),
			zap.Duration("backoff", backoff),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// DoWithRetry is the limiter-less form of Retrier.Do.
func DoWithRetry(ctx context.Context, client Doer, req *http.Request, maxRetries int) (*http.Response, error) {
	r := Retrier{Client: client, MaxRetries: maxRetries}
	return r.Do(ctx, req)
}
