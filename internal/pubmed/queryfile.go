// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// QueryFile is a saved search: the parameters and the articles they
// returned. The acquire command reads PMIDs back out of it.
type QueryFile struct {
	Query   QueryParams     `yaml:"query"`
	Results []types.Article `yaml:"results"`
	Summary QuerySummary    `yaml:"summary"`
}

// QueryParams stores the search parameters in a serializable form.
type QueryParams struct {
	Term       string `yaml:"term"`
	DateFrom   string `yaml:"date_from,omitempty"`
	DateTo     string `yaml:"date_to,omitempty"`
	MaxResults int    `yaml:"max_results,omitempty"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total     int       `yaml:"total"`
	Timestamp time.Time `yaml:"timestamp"`
}

// WriteQueryFile saves p and its results to path as YAML.
func WriteQueryFile(fsys afero.Fs, path string, p SearchParams, results []types.Article, at time.Time) error {
	qf := QueryFile{
		Query: QueryParams{
			Term:       p.Query,
			DateFrom:   p.DateFrom,
			DateTo:     p.DateTo,
			MaxResults: p.MaxResults,
		},
		Results: results,
		Summary: QuerySummary{Total: len(results), Timestamp: at},
	}
	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return afero.WriteFile(fsys, path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file.
func ReadQueryFile(fsys afero.Fs, path string) (*QueryFile, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}

// PMIDs returns the PMIDs of the saved results in order.
func (qf *QueryFile) PMIDs() []string {
	ids := make([]string, 0, len(qf.Results))
	for _, a := range qf.Results {
		ids = append(ids, a.PMID)
	}
	return ids
}

// Params converts the stored query back into SearchParams.
func (p QueryParams) Params() SearchParams {
	return SearchParams{
		Query:      p.Term,
		DateFrom:   p.DateFrom,
		DateTo:     p.DateTo,
		MaxResults: p.MaxResults,
	}
}
