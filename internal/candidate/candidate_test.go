// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package candidate

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

const base = "https://proxy.example.edu/login"

func unwrap(t *testing.T, wrapped string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(wrapped, base+"?url="), "not wrapped: %s", wrapped)
	u, err := url.Parse(wrapped)
	require.NoError(t, err)
	return u.Query().Get("url")
}

func TestFetchDOIOrder(t *testing.T) {
	g := New(base)
	got := g.Fetch(types.ArticleIDs{DOI: "10.1/x"})

	want := []string{
		"https://doi.org/10.1/x",
		"https://link.springer.com/content/pdf/10.1/x.pdf",
		"https://onlinelibrary.wiley.com/doi/pdf/10.1/x",
		"https://www.nature.com/articles/10.1/x.pdf",
		"https://pubs.acs.org/doi/pdf/10.1/x",
		"https://journals.asm.org/doi/pdf/10.1/x",
	}
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w, unwrap(t, got[i]), "position %d", i)
	}
}

func TestFetchPMCAppendedAfterDOI(t *testing.T) {
	g := New(base)
	got := g.Fetch(types.ArticleIDs{DOI: "10.1/x", PMCID: "PMC123"})

	require.Len(t, got, len(doiTemplates)+1)
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC123/pdf/", unwrap(t, got[len(got)-1]))
}

func TestFetchPMCOnly(t *testing.T) {
	got := New(base).Fetch(types.ArticleIDs{PMCID: "PMC123"})
	require.Len(t, got, 1)
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC123/pdf/", unwrap(t, got[0]))
}

func TestFetchEmpty(t *testing.T) {
	assert.Empty(t, New(base).Fetch(types.ArticleIDs{}))
}

func TestFetchDeterministic(t *testing.T) {
	g := New(base)
	ids := types.ArticleIDs{DOI: "10.1016/S0140-6736(20)30183-5", PMCID: "PMC7"}
	assert.Equal(t, g.Fetch(ids), g.Fetch(ids))
}

func TestManualGroups(t *testing.T) {
	g := New(base)
	got := g.Manual(types.ArticleIDs{DOI: "10.1/x", PMCID: "PMC123"}, "123")

	var targets []string
	for _, w := range got {
		targets = append(targets, unwrap(t, w))
	}

	require.Len(t, targets, len(doiTemplates)+1+2+1)
	assert.Equal(t, "https://academic.oup.com/search-results?page=1&q=10.1/x", targets[len(doiTemplates)])
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC123/pdf/", targets[len(doiTemplates)+1])
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC123/", targets[len(doiTemplates)+2])
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/123/", targets[len(targets)-1])
}

func TestManualPMIDOnly(t *testing.T) {
	got := New(base).Manual(types.ArticleIDs{}, "42")
	require.Len(t, got, 1)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/42/", unwrap(t, got[0]))
}

func TestWrapEncoding(t *testing.T) {
	g := New(base)
	got := g.Wrap("https://a.example/x y?q=1&r=(2)")
	assert.Equal(t, base+"?url=https%3A%2F%2Fa.example%2Fx%20y%3Fq%3D1%26r%3D(2)", got)
}

func TestEncodeComponent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.1016/S0140-6736(20)30183-5", "10.1016%2FS0140-6736(20)30183-5"},
		{"a b+c", "a%20b%2Bc"},
		{"!*'()~-_.", "!*'()~-_."},
		{"100%(", "100%25("},
		{"%28", "%2528"},
		{"é&=#", "%C3%A9%26%3D%23"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EncodeComponent(tt.in), tt.in)
		back, err := url.QueryUnescape(EncodeComponent(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.in, back)
	}
}

func TestNewDefaultsBase(t *testing.T) {
	assert.Equal(t, DefaultProxyLoginBase, New("").ProxyLoginBase)
}
