// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cookies

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/logging"
)

// ErrCaptureTimeout is returned when no proxy session cookie appeared in
// time.
var ErrCaptureTimeout = errors.New("timed out waiting for a proxy session cookie")

// CaptureOptions controls Capture.
type CaptureOptions struct {
	// Timeout bounds the whole capture. Zero means 5 minutes.
	Timeout time.Duration
	// PollInterval is how often cookies are checked. Zero means 1s.
	PollInterval time.Duration
	// ExecPath overrides the Chrome binary.
	ExecPath string
	Headless bool
	Log      *zap.Logger
}

// Captured is the result of a successful capture.
type Captured struct {
	Cookies   []Cookie
	UserAgent string
}

// Capture opens Chrome on loginURL and waits for the user to log in. It
// returns once a cookie whose name contains "ezproxy" is present.
func Capture(ctx context.Context, loginURL string, opts CaptureOptions) (Captured, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	log := logging.OrNop(opts.Log)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var ua string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(loginURL),
		chromedp.Evaluate(`navigator.userAgent`, &ua),
	); err != nil {
		return Captured{}, fmt.Errorf("opening login page: %w", err)
	}
	log.Info("waiting for proxy login in browser", zap.String("url", loginURL))

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		var raw []*network.Cookie
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			raw, err = storage.GetCookies().Do(ctx)
			return err
		}))
		if err == nil {
			cookies := fromNetwork(raw)
			if hasProxyCookie(cookies) {
				names := make([]string, len(cookies))
				for i, c := range cookies {
					names[i] = c.Name
				}
				log.Info("captured proxy session", zap.Strings("cookies", names))
				return Captured{Cookies: cookies, UserAgent: ua}, nil
			}
		} else if ctx.Err() == nil {
			log.Debug("reading browser cookies", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Captured{}, ErrCaptureTimeout
			}
			return Captured{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func hasProxyCookie(cookies []Cookie) bool {
	for _, c := range cookies {
		if strings.Contains(strings.ToLower(c.Name), "ezproxy") {
			return true
		}
	}
	return false
}

func fromNetwork(raw []*network.Cookie) []Cookie {
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		ck := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		// Session cookies report an expiry of -1.
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			ck.Expiry = time.Unix(int64(sec), int64(frac*1e9))
		}
		out = append(out, ck)
	}
	return out
}
