// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/acquire"
	"github.com/pdiddy/pubmed-retriever/internal/browsersession"
	"github.com/pdiddy/pubmed-retriever/internal/candidate"
	"github.com/pdiddy/pubmed-retriever/internal/credential"
	"github.com/pdiddy/pubmed-retriever/internal/httputil"
	"github.com/pdiddy/pubmed-retriever/internal/pubmed"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// components are the services shared by serve and acquire.
type components struct {
	cfg     types.Config
	fs      afero.Fs
	pubmed  *pubmed.Client
	creds   *credential.Manager
	browser *browsersession.Store
	engine  *acquire.Engine
}

func newComponents(cfg types.Config, rec acquire.Recorder) *components {
	fs := afero.NewOsFs()
	client := httputil.NewClient(types.HTTPConfig{})

	pm := pubmed.NewClient(httputil.NewClient(cfg.PubMed.HTTPConfig), cfg.PubMed, logger.Named("pubmed"))
	creds := credential.NewManager(
		httputil.WithoutRedirects(client),
		cfg.Proxy.LoginURL,
		cfg.Download.UserAgent,
		nil,
		logger.Named("credential"),
	)
	browser := browsersession.Open(fs, cfg.BrowserSessions.File, cfg.BrowserSessions.MaxAge, logger.Named("browser-session"))
	if bs, ok, err := browser.LoadSnapshot(cfg.Download.DownloadDir); err != nil {
		logger.Warn("loading browser session snapshot", zap.Error(err))
	} else if ok {
		logger.Info("loaded browser session snapshot", zap.String("session", bs.SessionID))
	}

	engine := acquire.New(cfg.Download, acquire.Deps{
		Resolver:    pm,
		Credentials: creds,
		Browser:     browser,
		Candidates:  candidate.New(cfg.Proxy.LoginURL),
		Client:      client,
		Fs:          fs,
		Recorder:    rec,
		Log:         logger.Named("acquire"),
	})

	return &components{
		cfg:     cfg,
		fs:      fs,
		pubmed:  pm,
		creds:   creds,
		browser: browser,
		engine:  engine,
	}
}
