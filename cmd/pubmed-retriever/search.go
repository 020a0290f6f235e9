// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-retriever/internal/httputil"
	"github.com/pdiddy/pubmed-retriever/internal/pubmed"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search PubMed",
	Long: `Search queries PubMed through the NCBI E-utilities and prints the matching
articles with their DOI and PMC identifiers. With --output the query and its
results are saved as YAML; "acquire --from-file" reads the PMIDs back.
--rerun repeats the query stored in such a file.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "PubMed query term")
	searchCmd.Flags().String("from", "", "publication date range start (YYYY/MM/DD)")
	searchCmd.Flags().String("to", "", "publication date range end (YYYY/MM/DD)")
	searchCmd.Flags().Int("max-results", 0, "maximum number of results, 1-500 (default 50)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().Bool("csl", false, "output results as CSL-YAML for reference managers")
	searchCmd.Flags().StringP("output", "o", "", "write query and results to a YAML file")
	searchCmd.Flags().String("rerun", "", "repeat the query saved in a YAML query file")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fs := afero.NewOsFs()

	var p pubmed.SearchParams
	if rerun, _ := cmd.Flags().GetString("rerun"); rerun != "" {
		qf, err := pubmed.ReadQueryFile(fs, rerun)
		if err != nil {
			return err
		}
		p = qf.Query.Params()
	}
	if q, _ := cmd.Flags().GetString("query"); q != "" {
		p.Query = q
	}
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		p.DateFrom = v
	}
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		p.DateTo = v
	}
	if n, _ := cmd.Flags().GetInt("max-results"); n != 0 {
		p.MaxResults = n
	}
	if p.MaxResults == 0 {
		p.MaxResults = cfg.PubMed.MaxResults
	}
	if p.Query == "" {
		return fmt.Errorf("provide --query or --rerun")
	}
	if p.MaxResults < 1 || p.MaxResults > pubmed.MaxResultsLimit {
		return fmt.Errorf("--max-results must be between 1 and %d", pubmed.MaxResultsLimit)
	}

	client := pubmed.NewClient(httputil.NewClient(cfg.PubMed.HTTPConfig), cfg.PubMed, logger.Named("pubmed"))
	articles, err := client.Search(cmd.Context(), p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := pubmed.WriteQueryFile(fs, path, p, articles, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d results to %s\n", len(articles), path)
		return nil
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(articles)
	}
	if asCSL, _ := cmd.Flags().GetBool("csl"); asCSL {
		return pubmed.FormatCSL(articles, out)
	}
	printArticles(out, client.Term(p), articles)
	return nil
}

func printArticles(w io.Writer, term string, articles []types.Article) {
	fmt.Fprintf(w, "%d result(s) for %s\n\n", len(articles), term)
	for i, a := range articles {
		fmt.Fprintf(w, "%3d. [PMID %s] %s\n", i+1, a.PMID, a.Title)
		fmt.Fprintf(w, "     %s. %s, %d\n", a.Authors, a.Journal, a.Year)
		if !a.IDs().IsEmpty() {
			fmt.Fprintf(w, "     DOI: %s  PMCID: %s\n", orDash(a.DOI), orDash(a.PMCID))
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
