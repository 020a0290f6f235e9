// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pubmed-retriever CLI: PubMed
// search, PDF acquisition through an institutional EZProxy, and the HTTP
// API that drives both from a browser.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/acquire"
	"github.com/pdiddy/pubmed-retriever/internal/browsersession"
	"github.com/pdiddy/pubmed-retriever/internal/candidate"
	"github.com/pdiddy/pubmed-retriever/internal/logging"
	"github.com/pdiddy/pubmed-retriever/internal/pubmed"
	"github.com/pdiddy/pubmed-retriever/internal/secrets"
	"github.com/pdiddy/pubmed-retriever/internal/worker"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const secretsDir = ".secrets/"

var (
	// loadedSecrets holds keys read from .secrets/ at startup.
	loadedSecrets secrets.Secrets
	logger        = zap.NewNop()
	flushLog      = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "pubmed-retriever",
	Short: "Search PubMed and fetch full-text PDFs through an EZProxy",
	Long: `pubmed-retriever searches PubMed, then downloads the full-text PDFs of
the selected articles through an institutional EZProxy, using either a
username/password login or cookies captured from a logged-in browser.

Articles that cannot be fetched automatically get a text file with manual
access instructions instead. Run "serve" for the HTTP API and progress
WebSocket, or use the search and acquire subcommands directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(afero.NewOsFs(), secretsDir, func(name string, err error) {
			fmt.Fprintf(os.Stderr, "warning: skipping secret %s: %v\n", name, err)
		})
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", s.Keys())
		}

		var lc types.LogConfig
		if err := viper.UnmarshalKey("log", &lc); err != nil {
			return fmt.Errorf("reading log config: %w", err)
		}
		if lc.File, err = expand(lc.File); err != nil {
			return err
		}
		logger, flushLog = logging.New(lc)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		flushLog()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pubmed-retriever.yaml or ~/.config/pubmed-retriever/pubmed-retriever.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy.login_url", candidate.DefaultProxyLoginBase)
	v.SetDefault("download.dir", filepath.Join("~", "Documents", "downloaded_pdfs"))
	v.SetDefault("download.delay", "2s")
	v.SetDefault("download.timeout", acquire.DefaultTimeout.String())
	v.SetDefault("download.user_agent", acquire.DefaultUserAgent)
	v.SetDefault("download.reauthenticate", true)
	v.SetDefault("download.follow_landing_pages", false)
	v.SetDefault("browser_sessions.file", filepath.Join("~", browsersession.DefaultFile))
	v.SetDefault("browser_sessions.max_age", browsersession.DefaultMaxAge.String())
	v.SetDefault("pubmed.api_key", "")
	v.SetDefault("pubmed.max_results", pubmed.DefaultMaxResults)
	v.SetDefault("pubmed.timeout", "30s")
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.workers", worker.DefaultWorkers)
	v.SetDefault("store.driver", string(types.StoreMemory))
	v.SetDefault("store.path", "pubmed-retriever.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pubmed-retriever")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		if home, err := homedir.Dir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pubmed-retriever"))
		}
	}

	viper.SetEnvPrefix("PUBMED_RETRIEVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Environment names understood by earlier deployments.
	_ = viper.BindEnv("proxy.login_url", "PUBMED_RETRIEVER_PROXY_LOGIN_URL", "PROXY_URL")
	_ = viper.BindEnv("download.dir", "PUBMED_RETRIEVER_DOWNLOAD_DIR", "DOWNLOAD_FOLDER")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the full configuration, expands ~ in paths and fills
// the NCBI key from secrets when it is not configured.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	for _, p := range []*string{&cfg.Download.DownloadDir, &cfg.BrowserSessions.File, &cfg.Store.Path, &cfg.Log.File} {
		var err error
		if *p, err = expand(*p); err != nil {
			return cfg, err
		}
	}
	cfg.PubMed.APIKey = loadedSecrets.Or(secrets.NCBIAPIKey, cfg.PubMed.APIKey)
	return cfg, nil
}

func expand(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return p, nil
}

func main() {
	err := rootCmd.Execute()
	flushLog()
	if err != nil {
		os.Exit(1)
	}
}
