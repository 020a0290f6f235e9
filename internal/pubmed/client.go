// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed searches PubMed through the NCBI E-utilities and resolves
// the DOI and PMC identifiers of individual records.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/pubmed-retriever/internal/httputil"
	"github.com/pdiddy/pubmed-retriever/internal/logging"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// eutilsBase is the E-utilities root. Declared as a var so tests can
// substitute an httptest server.
var eutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// NCBI request ceilings, per second.
const (
	anonymousRate = 3
	apiKeyRate    = 10
)

const (
	DefaultMaxResults = 50
	MaxResultsLimit   = 500

	// defaultDateFrom opens a date range that only names its end.
	defaultDateFrom = "1900/01/01"
	dateLayout      = "2006/01/02"
)

// SearchParams describes one PubMed query.
type SearchParams struct {
	Query string
	// DateFrom and DateTo are publication dates, YYYY/MM/DD. Either may be
	// empty; when both are, no date filter is applied.
	DateFrom   string
	DateTo     string
	MaxResults int
	RetStart   int
}

// Client talks to the E-utilities endpoints.
type Client struct {
	cfg     types.PubMedConfig
	retrier *httputil.Retrier
	log     *zap.Logger

	// Now supplies "today" for open-ended date ranges.
	Now func() time.Time
}

// NewClient returns a Client rate limited to the NCBI ceiling for cfg.
func NewClient(doer httputil.Doer, cfg types.PubMedConfig, log *zap.Logger) *Client {
	limit := rate.Limit(anonymousRate)
	if cfg.APIKey != "" {
		limit = apiKeyRate
	}
	log = logging.OrNop(log)
	return &Client{
		cfg: cfg,
		retrier: &httputil.Retrier{
			Client:  doer,
			Limiter: rate.NewLimiter(limit, 1),
			Log:     log,
		},
		log: log,
		Now: time.Now,
	}
}

// Search runs esearch for p and returns the matching articles in the order
// PubMed ranked them.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]types.Article, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	pmids, err := c.esearch(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(pmids) == 0 {
		return nil, nil
	}
	c.log.Debug("esearch", zap.String("query", p.Query), zap.Int("hits", len(pmids)))

	summaries, err := c.esummary(ctx, pmids)
	if err != nil {
		return nil, err
	}
	fetched, err := c.efetch(ctx, pmids)
	if err != nil {
		return nil, err
	}

	byPMID := make(map[string]types.Article, len(fetched))
	for _, a := range fetched {
		byPMID[a.PMID] = a
	}
	articles := make([]types.Article, 0, len(pmids))
	for _, id := range pmids {
		a, ok := byPMID[id]
		if !ok {
			continue
		}
		ids := summaries[id].ids()
		a.DOI, a.PMCID = ids.DOI, ids.PMCID
		articles = append(articles, a)
	}
	return articles, nil
}

// ResolveIdentifiers returns the DOI and PMC id recorded for pmid. A record
// without either yields empty ArticleIDs and no error.
func (c *Client) ResolveIdentifiers(ctx context.Context, pmid string) (types.ArticleIDs, error) {
	summaries, err := c.esummary(ctx, []string{pmid})
	if err != nil {
		return types.ArticleIDs{}, err
	}
	return summaries[pmid].ids(), nil
}

// Term builds the esearch term for p, appending the publication date range
// when either bound is set.
func (c *Client) Term(p SearchParams) string {
	if p.DateFrom == "" && p.DateTo == "" {
		return p.Query
	}
	from := p.DateFrom
	if from == "" {
		from = defaultDateFrom
	}
	to := p.DateTo
	if to == "" {
		to = c.Now().Format(dateLayout)
	}
	return fmt.Sprintf(`%s AND ("%s"[Date - Publication] : "%s"[Date - Publication])`, p.Query, from, to)
}

func (c *Client) esearch(ctx context.Context, p SearchParams) ([]string, error) {
	n := p.MaxResults
	if n <= 0 {
		n = c.cfg.MaxResults
	}
	if n <= 0 {
		n = DefaultMaxResults
	}
	n = min(n, MaxResultsLimit)

	q := url.Values{
		"db":       {"pubmed"},
		"term":     {c.Term(p)},
		"retmode":  {"json"},
		"retmax":   {fmt.Sprint(n)},
		"retstart": {fmt.Sprint(p.RetStart)},
	}

	var out esearchResponse
	if err := c.getJSON(ctx, "esearch.fcgi", q, &out); err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}
	return out.Result.IDList, nil
}

func (c *Client) esummary(ctx context.Context, pmids []string) (map[string]summaryRecord, error) {
	q := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"json"},
	}
	var out esummaryResponse
	if err := c.getJSON(ctx, "esummary.fcgi", q, &out); err != nil {
		return nil, fmt.Errorf("esummary: %w", err)
	}

	records := make(map[string]summaryRecord, len(pmids))
	for _, id := range pmids {
		raw, ok := out.Result[id]
		if !ok {
			continue
		}
		var rec summaryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.log.Warn("skipping malformed esummary record", zap.String("pmid", id), zap.Error(err))
			continue
		}
		records[id] = rec
	}
	return records, nil
}

func (c *Client) efetch(ctx context.Context, pmids []string) ([]types.Article, error) {
	q := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	resp, err := c.get(ctx, "efetch.fcgi", q)
	if err != nil {
		return nil, fmt.Errorf("efetch: %w", err)
	}
	defer resp.Body.Close()

	articles, err := parseArticleSet(resp.Body, c.Now().Year())
	if err != nil {
		return nil, fmt.Errorf("efetch: %w", err)
	}
	return articles, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, v any) error {
	resp, err := c.get(ctx, endpoint, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// get issues a rate-limited GET and returns a 200 response.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values) (*http.Response, error) {
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	u := eutilsBase + "/" + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.retrier.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

// E-utilities JSON structures.
type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryResponse struct {
	// Result maps each PMID to its record; it also carries a "uids" list.
	Result map[string]json.RawMessage `json:"result"`
}

type summaryRecord struct {
	UID        string      `json:"uid"`
	ArticleIDs []articleID `json:"articleids"`
}

type articleID struct {
	IDType string `json:"idtype"`
	Value  string `json:"value"`
}

func (r summaryRecord) ids() types.ArticleIDs {
	var ids types.ArticleIDs
	for _, a := range r.ArticleIDs {
		switch a.IDType {
		case "doi":
			ids.DOI = a.Value
		case "pmc":
			ids.PMCID = a.Value
		}
	}
	return ids
}
