// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-retriever/internal/acquire"
	"github.com/pdiddy/pubmed-retriever/internal/pubmed"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire [pmids...]",
	Short: "Download PDFs for PubMed articles through the proxy",
	Long: `Acquire logs in to the EZProxy, then fetches the full-text PDF of each
article, trying any captured browser session first and the credential
session second. Articles without a reachable PDF get a manual-access
instructions file instead.

Identifiers are PMIDs ("12345", "PMID:12345") or PubMed URLs. --from-file
adds the PMIDs of a query file written by "search --output".

Credentials come from --username/--password, then the ezproxy-username and
ezproxy-password secrets, then the login saved with "login --save".`,
	RunE: runAcquire,
}

func init() {
	acquireCmd.Flags().String("from-file", "", "YAML query file whose results to acquire")
	acquireCmd.Flags().String("report", "", "write a YAML report of the results")
	acquireCmd.Flags().String("username", "", "proxy username")
	acquireCmd.Flags().String("password", "", "proxy password")
	acquireCmd.Flags().String("dir", "", "download directory")
	acquireCmd.Flags().Duration("delay", 0, "pause between articles (default 2s)")

	rootCmd.AddCommand(acquireCmd)
}

func runAcquire(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		if cfg.Download.DownloadDir, err = expand(dir); err != nil {
			return err
		}
	}
	if delay, _ := cmd.Flags().GetDuration("delay"); delay > 0 {
		cfg.Download.Delay = delay
	}

	inputs := append([]string(nil), args...)
	if path, _ := cmd.Flags().GetString("from-file"); path != "" {
		qf, err := pubmed.ReadQueryFile(afero.NewOsFs(), path)
		if err != nil {
			return err
		}
		inputs = append(inputs, qf.PMIDs()...)
	}
	pmids, rejected := acquire.NormalizePMIDs(inputs)
	errOut := cmd.ErrOrStderr()
	for _, r := range rejected {
		fmt.Fprintf(errOut, "warning: skipping %q: not a PMID or PubMed URL\n", r)
	}
	if len(pmids) == 0 {
		return fmt.Errorf("provide one or more PMIDs or --from-file")
	}

	username, password, err := resolveLogin(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newComponents(cfg, nil)
	sessionID := uuid.NewString()
	if err := c.creds.Authenticate(ctx, sessionID, username, password); err != nil {
		return fmt.Errorf("proxy login: %w", err)
	}
	if n := len(c.browser.GetAllValid()); n > 0 {
		fmt.Fprintf(errOut, "Using %d captured browser session(s)\n", n)
	}

	results, runErr := runWithProgress(ctx, errOut, c.engine, sessionID, pmids)

	out := cmd.OutOrStdout()
	sum := summarize(results)
	printResults(out, results)
	fmt.Fprintf(out, "\n%d PDF(s), %d instruction file(s), %d failed of %d; files in %s\n",
		sum.PDFs, sum.Instructions, sum.Failed, len(pmids), cfg.Download.DownloadDir)

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := writeReport(c.fs, path, results, sum, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", path)
	}

	if runErr != nil {
		return runErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d article(s) failed acquisition", sum.Failed)
	}
	return nil
}

// runWithProgress runs the batch behind a terminal progress bar.
func runWithProgress(ctx context.Context, w io.Writer, engine *acquire.Engine, sessionID string, pmids []string) ([]types.AcquisitionResult, error) {
	p := mpb.New(mpb.WithWidth(48), mpb.WithOutput(w))
	var current atomic.Value
	current.Store("")

	name := "Acquiring"
	bar := p.New(int64(len(pmids)),
		mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.CountersNoUnit("%d/%d", decor.WC{W: 8}),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.Any(func(decor.Statistics) string { return "PMID " + current.Load().(string) }), "Complete",
			),
		),
	)

	results, err := engine.RunBatch(ctx, sessionID, pmids, acquire.BatchOptions{
		OnProgress: func(pr types.Progress) { current.Store(pr.CurrentIdentifier) },
		OnResult:   func(types.Progress, types.AcquisitionResult) { bar.Increment() },
	})
	if !bar.Completed() {
		bar.Abort(false)
	}
	p.Wait()
	return results, err
}

type reportSummary struct {
	Total        int `yaml:"total"`
	PDFs         int `yaml:"pdfs"`
	Instructions int `yaml:"instructions"`
	Failed       int `yaml:"failed"`
}

type report struct {
	Generated time.Time                 `yaml:"generated"`
	Summary   reportSummary             `yaml:"summary"`
	Results   []types.AcquisitionResult `yaml:"results"`
}

func summarize(results []types.AcquisitionResult) reportSummary {
	s := reportSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.IsPDF():
			s.PDFs++
		case r.IsFallback():
			s.Instructions++
		default:
			s.Failed++
		}
	}
	return s
}

func printResults(w io.Writer, results []types.AcquisitionResult) {
	for _, r := range results {
		switch {
		case r.IsPDF():
			fmt.Fprintf(w, "  ok    %s  %s (%d bytes, %s)\n", r.Identifier, r.FilePath, r.FileSizeBytes, r.Source)
		case r.IsFallback():
			fmt.Fprintf(w, "  manual %s  %s\n", r.Identifier, r.FilePath)
		default:
			fmt.Fprintf(w, "  FAIL  %s  %s\n", r.Identifier, r.Error)
		}
	}
}

func writeReport(fs afero.Fs, path string, results []types.AcquisitionResult, sum reportSummary, at time.Time) error {
	data, err := yaml.Marshal(report{Generated: at, Summary: sum, Results: results})
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
