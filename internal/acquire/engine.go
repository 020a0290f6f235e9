// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire fetches article PDFs through the institutional proxy.
//
// For each PMID the engine resolves the DOI and PMC id, then walks the
// candidate URLs with the cookies of a captured browser session, and again
// with the credential session's cookies. When neither yields a PDF it writes
// a manual-access instructions file instead.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/candidate"
	"github.com/pdiddy/pubmed-retriever/internal/httputil"
	"github.com/pdiddy/pubmed-retriever/internal/logging"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// Result messages surfaced to users. They are part of the HTTP contract.
const (
	MsgNotAuthenticated = "Session not authenticated"
	MsgNoIdentifiers    = "DOI and PMCID not found"
	MsgFallbackSaved    = "Automatic download failed - manual access instructions saved"
)

// ErrNotAuthenticated is returned by RunBatch when the session has not
// logged in.
var ErrNotAuthenticated = errors.New("session not authenticated")

// DefaultTimeout bounds a single candidate fetch, body included.
const DefaultTimeout = 60 * time.Second

// DefaultDelay is the pause between batch attempts when none is configured.
// A negative Delay disables pacing.
const DefaultDelay = 2 * time.Second

// DefaultUserAgent is sent on credential-session fetches when none is
// configured. Browser sessions carry their own.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Resolver looks up the identifiers needed to build candidate URLs.
type Resolver interface {
	ResolveIdentifiers(ctx context.Context, pmid string) (types.ArticleIDs, error)
}

// Credentials is the part of the credential manager the engine uses.
type Credentials interface {
	IsAuthenticated(sessionID string) bool
	Reauthenticate(ctx context.Context, sessionID string)
	CookieHeader(sessionID string) string
}

// BrowserSessions supplies captured browser cookie snapshots.
type BrowserSessions interface {
	GetAllValid() []types.BrowserSession
}

// Deps are the collaborators of an Engine. Resolver and Credentials are
// required.
type Deps struct {
	Resolver    Resolver
	Credentials Credentials
	Browser     BrowserSessions
	Candidates  candidate.Generator
	Client      *http.Client
	Fs          afero.Fs
	Recorder    Recorder
	Log         *zap.Logger
}

// Engine acquires PDFs for single articles and batches.
type Engine struct {
	cfg      types.AcquisitionConfig
	resolver Resolver
	creds    Credentials
	browser  BrowserSessions
	gen      candidate.Generator
	client   *http.Client
	fs       afero.Fs
	rec      Recorder
	log      *zap.Logger

	// Now stamps instruction files; tests replace it.
	Now func() time.Time
}

// New returns an Engine. Missing optional deps get defaults: a client built
// from cfg, the OS filesystem, a no-op recorder and logger.
func New(cfg types.AcquisitionConfig, deps Deps) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	e := &Engine{
		cfg:      cfg,
		resolver: deps.Resolver,
		creds:    deps.Credentials,
		browser:  deps.Browser,
		gen:      deps.Candidates,
		client:   deps.Client,
		fs:       deps.Fs,
		rec:      deps.Recorder,
		log:      logging.OrNop(deps.Log),
		Now:      time.Now,
	}
	if e.gen.ProxyLoginBase == "" {
		e.gen = candidate.New("")
	}
	if e.client == nil {
		e.client = httputil.NewClient(cfg.HTTPConfig)
	}
	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	if e.rec == nil {
		e.rec = NopRecorder{}
	}
	return e
}

// DownloadDir returns the directory receiving PDFs and instruction files.
func (e *Engine) DownloadDir() string {
	return e.cfg.DownloadDir
}

// IsAuthenticated reports whether sessionID may run acquisitions.
func (e *Engine) IsAuthenticated(sessionID string) bool {
	return e.creds.IsAuthenticated(sessionID)
}

// Acquire obtains the PDF for one PMID. It never returns an error: every
// failure, panics included, is reported in the result.
func (e *Engine) Acquire(ctx context.Context, sessionID, identifier string) (res types.AcquisitionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("acquisition panicked", zap.String("pmid", identifier), zap.Any("panic", r))
			res = failed(identifier, fmt.Sprint(r))
		}
		e.rec.ObserveResult(resultOutcome(res))
	}()

	if !e.creds.IsAuthenticated(sessionID) {
		return failed(identifier, MsgNotAuthenticated)
	}

	log := e.log.With(zap.String("pmid", identifier))
	log.Info("starting acquisition")

	ids, err := e.resolver.ResolveIdentifiers(ctx, identifier)
	if err != nil || ids.IsEmpty() {
		if err != nil {
			log.Warn("identifier lookup failed", zap.Error(err))
		}
		return failed(identifier, MsgNoIdentifiers)
	}

	candidates := e.gen.Fetch(ids)
	dest := filepath.Join(e.cfg.DownloadDir, PDFFileName(identifier, ids.DOI))

	if e.browser != nil {
		if sessions := e.browser.GetAllValid(); len(sessions) > 0 {
			bs := sessions[0]
			log.Info("trying browser session", zap.String("browser_session", bs.SessionID))
			a := attempt{
				source:    types.SourceBrowserSession,
				cookie:    bs.CookieHeader(),
				userAgent: bs.UserAgent,
			}
			if res, done := e.tryCandidates(ctx, log, a, candidates, identifier, dest); done {
				return res
			}
		}
	}

	if e.cfg.Reauthenticate {
		e.creds.Reauthenticate(ctx, sessionID)
	}
	a := attempt{
		source:    types.SourceCredentialSession,
		cookie:    e.creds.CookieHeader(sessionID),
		userAgent: e.cfg.UserAgent,
	}
	if res, done := e.tryCandidates(ctx, log, a, candidates, identifier, dest); done {
		return res
	}

	if err := ctx.Err(); err != nil {
		return failed(identifier, err.Error())
	}
	return e.writeFallback(log, identifier, ids)
}

// tryCandidates runs one pass over candidates. done is true when the pass
// produced a final result: a saved PDF or a local write failure.
func (e *Engine) tryCandidates(ctx context.Context, log *zap.Logger, a attempt, candidates []string, identifier, dest string) (types.AcquisitionResult, bool) {
	client := httputil.WithRedirectJar(e.client)
	for _, u := range candidates {
		if ctx.Err() != nil {
			return types.AcquisitionResult{}, false
		}
		start := time.Now()
		n, err := e.fetchPDF(ctx, client, a, u, dest)
		switch {
		case err == nil:
			e.rec.ObserveAttempt(a.source, OutcomePDF, time.Since(start))
			log.Info("pdf saved", zap.String("source", a.source), zap.String("path", dest), zap.Int64("bytes", n))
			return types.AcquisitionResult{
				Identifier:    identifier,
				Success:       true,
				FilePath:      dest,
				FileSizeBytes: n,
				Source:        a.source,
			}, true
		case errors.Is(err, errNotPDF):
			e.rec.ObserveAttempt(a.source, OutcomeNotPDF, time.Since(start))
			log.Debug("candidate is not a pdf", zap.String("url", u), zap.Error(err))
		case errors.Is(err, errWrite):
			e.rec.ObserveAttempt(a.source, OutcomeError, time.Since(start))
			log.Error("saving pdf failed", zap.Error(err))
			return failed(identifier, err.Error()), true
		default:
			e.rec.ObserveAttempt(a.source, OutcomeError, time.Since(start))
			log.Debug("candidate fetch failed", zap.String("url", u), zap.Error(err))
		}
	}
	return types.AcquisitionResult{}, false
}

func (e *Engine) writeFallback(log *zap.Logger, identifier string, ids types.ArticleIDs) types.AcquisitionResult {
	doc := Instructions(e.Now(), identifier, ids, e.gen.Manual(ids, identifier))
	path := filepath.Join(e.cfg.DownloadDir, InstructionsFileName(identifier, ids.DOI))

	n, err := writeAtomic(e.fs, path, strings.NewReader(doc))
	if err != nil {
		log.Error("writing instructions failed", zap.Error(err))
		return failed(identifier, err.Error())
	}
	log.Info("manual access instructions saved", zap.String("path", path))
	return types.AcquisitionResult{
		Identifier:    identifier,
		Success:       true,
		FilePath:      path,
		Error:         MsgFallbackSaved,
		FileSizeBytes: n,
		Source:        types.SourceInstructions,
	}
}

func failed(identifier, msg string) types.AcquisitionResult {
	return types.AcquisitionResult{Identifier: identifier, Error: msg}
}
