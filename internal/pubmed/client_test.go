// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

const sampleESearch = `{"header":{"type":"esearch"},"esearchresult":{"count":"2","retmax":"2","retstart":"0","idlist":["222","111"]}}`

const sampleESummary = `{
  "header": {"type": "esummary"},
  "result": {
    "uids": ["222", "111"],
    "111": {"uid": "111", "articleids": [
      {"idtype": "pubmed", "value": "111"},
      {"idtype": "doi", "value": "10.1000/abc.1"},
      {"idtype": "pmc", "value": "PMC555"}
    ]},
    "222": {"uid": "222", "articleids": [
      {"idtype": "pubmed", "value": "222"}
    ]}
  }
}`

const sampleEFetch = `<?xml version="1.0" ?>
<!DOCTYPE PubmedArticleSet PUBLIC "-//NLM//DTD PubMedArticle, 1st January 2024//EN" "https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_240101.dtd">
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation Status="MEDLINE" Owner="NLM">
      <PMID Version="1">111</PMID>
      <Article PubModel="Print">
        <Journal>
          <ISSN IssnType="Electronic">1234-5678</ISSN>
          <JournalIssue CitedMedium="Internet">
            <PubDate><Year>2021</Year><Month>Mar</Month></PubDate>
          </JournalIssue>
          <Title>Journal of Tests &amp; Trials</Title>
          <ISOAbbreviation>J Tests</ISOAbbreviation>
        </Journal>
        <ArticleTitle>Effects of <i>E. coli</i> on H<sub>2</sub>O &amp; more</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">First part.</AbstractText>
          <AbstractText Label="RESULTS">Second &lt;p&gt; part.</AbstractText>
        </Abstract>
        <AuthorList CompleteYN="Y">
          <Author><LastName>Smith</LastName><ForeName>Alice</ForeName></Author>
          <Author><LastName>Jones</LastName><ForeName>Bob</ForeName></Author>
          <Author><CollectiveName>Test Consortium</CollectiveName></Author>
          <Author><LastName>Fourth</LastName><ForeName>Dan</ForeName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">222</PMID>
      <Article>
        <Journal>
          <JournalIssue><PubDate><MedlineDate>1998 Dec-1999 Jan</MedlineDate></PubDate></JournalIssue>
          <ISOAbbreviation>Abbr J</ISOAbbreviation>
        </Journal>
        <ArticleTitle></ArticleTitle>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

type eutilsServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries map[string][]url.Values
}

func newEutilsServer(t *testing.T) *eutilsServer {
	t.Helper()
	s := &eutilsServer{queries: map[string][]url.Values{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.queries[r.URL.Path] = append(s.queries[r.URL.Path], r.URL.Query())
		s.mu.Unlock()

		switch r.URL.Path {
		case "/esearch.fcgi":
			w.Write([]byte(sampleESearch))
		case "/esummary.fcgi":
			w.Write([]byte(sampleESummary))
		case "/efetch.fcgi":
			w.Header().Set("Content-Type", "text/xml")
			w.Write([]byte(sampleEFetch))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)

	orig := eutilsBase
	eutilsBase = s.URL
	t.Cleanup(func() { eutilsBase = orig })
	return s
}

func (s *eutilsServer) query(path string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queries[path]
	if len(q) == 0 {
		return nil
	}
	return q[len(q)-1]
}

func newTestClient(t *testing.T, cfg types.PubMedConfig) *Client {
	c := NewClient(&http.Client{}, cfg, zaptest.NewLogger(t))
	c.Now = func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestSearch(t *testing.T) {
	srv := newEutilsServer(t)
	c := newTestClient(t, types.PubMedConfig{})

	got, err := c.Search(context.Background(), SearchParams{Query: "covid"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// esearch order is preserved.
	second, first := got[0], got[1]
	assert.Equal(t, "222", second.PMID)
	assert.Equal(t, "111", first.PMID)

	assert.Equal(t, "Effects of E. coli on H2O & more", first.Title)
	assert.Equal(t, "Alice Smith, Bob Jones, Test Consortium", first.Authors)
	assert.Equal(t, "Journal of Tests & Trials", first.Journal)
	assert.Equal(t, 2021, first.Year)
	assert.Equal(t, "First part. Second <p> part.", first.Abstract)
	assert.Equal(t, "10.1000/abc.1", first.DOI)
	assert.Equal(t, "PMC555", first.PMCID)

	assert.Equal(t, noTitle, second.Title)
	assert.Equal(t, noAuthors, second.Authors)
	assert.Equal(t, "Abbr J", second.Journal)
	assert.Equal(t, 1998, second.Year)
	assert.Empty(t, second.DOI)

	q := srv.query("/esearch.fcgi")
	assert.Equal(t, "covid", q.Get("term"))
	assert.Equal(t, "50", q.Get("retmax"))
	assert.Equal(t, "0", q.Get("retstart"))
	assert.Equal(t, "json", q.Get("retmode"))
	assert.Equal(t, "222,111", srv.query("/efetch.fcgi").Get("id"))
	assert.Empty(t, q.Get("api_key"))
}

func TestSearchMaxResultsClamped(t *testing.T) {
	srv := newEutilsServer(t)
	c := newTestClient(t, types.PubMedConfig{APIKey: "k"})

	_, err := c.Search(context.Background(), SearchParams{Query: "x", MaxResults: 9000, RetStart: 20})
	require.NoError(t, err)
	q := srv.query("/esearch.fcgi")
	assert.Equal(t, "500", q.Get("retmax"))
	assert.Equal(t, "20", q.Get("retstart"))
	assert.Equal(t, "k", q.Get("api_key"))
}

func TestSearchEmptyQuery(t *testing.T) {
	c := newTestClient(t, types.PubMedConfig{})
	_, err := c.Search(context.Background(), SearchParams{Query: "  "})
	assert.Error(t, err)
}

func TestSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	orig := eutilsBase
	eutilsBase = srv.URL
	defer func() { eutilsBase = orig }()

	_, err := newTestClient(t, types.PubMedConfig{}).Search(context.Background(), SearchParams{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestTerm(t *testing.T) {
	c := newTestClient(t, types.PubMedConfig{})
	tests := []struct {
		name string
		p    SearchParams
		want string
	}{
		{"no dates", SearchParams{Query: "q"}, "q"},
		{"both", SearchParams{Query: "q", DateFrom: "2020/01/01", DateTo: "2021/12/31"},
			`q AND ("2020/01/01"[Date - Publication] : "2021/12/31"[Date - Publication])`},
		{"from only", SearchParams{Query: "q", DateFrom: "2020/01/01"},
			`q AND ("2020/01/01"[Date - Publication] : "2026/10/16"[Date - Publication])`},
		{"to only", SearchParams{Query: "q", DateTo: "2001/01/01"},
			`q AND ("1900/01/01"[Date - Publication] : "2001/01/01"[Date - Publication])`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Term(tt.p))
		})
	}
}

func TestResolveIdentifiers(t *testing.T) {
	srv := newEutilsServer(t)
	c := newTestClient(t, types.PubMedConfig{})

	ids, err := c.ResolveIdentifiers(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, types.ArticleIDs{DOI: "10.1000/abc.1", PMCID: "PMC555"}, ids)
	assert.Equal(t, "111", srv.query("/esummary.fcgi").Get("id"))

	ids, err = c.ResolveIdentifiers(context.Background(), "222")
	require.NoError(t, err)
	assert.True(t, ids.IsEmpty())

	ids, err = c.ResolveIdentifiers(context.Background(), "999")
	require.NoError(t, err)
	assert.True(t, ids.IsEmpty())
}

func TestQueryFileRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p := SearchParams{Query: "asthma", DateFrom: "2020/01/01", MaxResults: 10}
	results := []types.Article{{PMID: "1", Title: "A"}, {PMID: "2", Title: "B"}}

	require.NoError(t, WriteQueryFile(fsys, "/q.yaml", p, results, time.Now()))

	data, err := afero.ReadFile(fsys, "/q.yaml")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "term: asthma"))

	qf, err := ReadQueryFile(fsys, "/q.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, qf.PMIDs())
	assert.Equal(t, p, qf.Query.Params())
	assert.Equal(t, 2, qf.Summary.Total)
}

func TestReadQueryFileMissing(t *testing.T) {
	_, err := ReadQueryFile(afero.NewMemMapFs(), "/missing.yaml")
	assert.Error(t, err)
}
