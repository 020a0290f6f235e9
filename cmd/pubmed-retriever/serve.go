// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/metrics"
	"github.com/pdiddy/pubmed-retriever/internal/progress"
	"github.com/pdiddy/pubmed-retriever/internal/server"
	"github.com/pdiddy/pubmed-retriever/internal/store"
	"github.com/pdiddy/pubmed-retriever/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with background download workers",
	Long: `Serve exposes search, the download queue, proxy login and browser session
capture as a JSON API under /api, streams download progress over /ws, and
publishes Prometheus metrics on /metrics. Downloads run on background
workers; one batch per session at a time.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :5000)")
	serveCmd.Flags().Int("workers", 0, "concurrent download jobs (default 2)")
	serveCmd.Flags().String("store", "", "record store driver: memory or sqlite")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.workers", serveCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("store.driver", serveCmd.Flags().Lookup("store"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	records, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}
	defer records.Close()

	m := metrics.New()
	c := newComponents(cfg, m)

	hub := progress.NewHub(0, logger.Named("progress"))
	hub.OnChange = m.SetSubscribers

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := worker.New(c.engine, records, hub, cfg.Server.Workers, logger.Named("worker"))
	jobs.Observer = m
	jobs.Start(ctx)
	defer jobs.Stop()

	srv := server.New(server.Deps{
		Records:     records,
		Searcher:    c.pubmed,
		Auth:        c.creds,
		Browser:     c.browser,
		Jobs:        jobs,
		Hub:         hub,
		Metrics:     m,
		Fs:          c.fs,
		DownloadDir: cfg.Download.DownloadDir,
		Log:         logger.Named("server"),
	})

	logger.Info("serving",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", string(cfg.Store.Driver)),
		zap.String("download_dir", cfg.Download.DownloadDir),
		zap.String("proxy", cfg.Proxy.LoginURL),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s (downloads to %s)\n", cfg.Server.Addr, cfg.Download.DownloadDir)
	return srv.Run(ctx, cfg.Server.Addr)
}
